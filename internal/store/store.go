package store

import (
	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/github"
)

// Store defines the storage operations used by the pipeline to mirror the
// record files. It is satisfied by *DB and can be replaced with a mock for
// testing.
type Store interface {
	// ReplaceIssues replaces the stored issue snapshot for repo.
	ReplaceIssues(repo string, issues []github.Issue) error

	// SaveRun replaces the issues and groups of run.Repo and records run
	// in one transaction.
	SaveRun(run *Run, issues []github.Issue, groups []aggregate.Group) error
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
