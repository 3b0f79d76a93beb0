package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/github"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run records one aggregation pass over a repository's issues.
type Run struct {
	ID         string
	Repo       string
	StartedAt  time.Time
	FinishedAt time.Time
	Issues     int
	Dropped    int
	Groups     int
}

// SaveRun mirrors a finished aggregation run: it replaces repo's issues and
// groups and records run, all in one transaction. A missing run ID is filled
// with a new UUID.
func (d *DB) SaveRun(run *Run, issues []github.Issue, groups []aggregate.Group) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return d.inTx(func(tx *sql.Tx) error {
		if err := replaceIssues(tx, run.Repo, issues); err != nil {
			return err
		}
		if err := replaceGroups(tx, run.Repo, groups); err != nil {
			return err
		}
		return insertRun(tx, run)
	})
}

func insertRun(tx *sql.Tx, run *Run) error {
	_, err := tx.Exec(`
		INSERT INTO runs (id, repo, started_at, finished_at, issues, dropped, group_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Repo,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Issues, run.Dropped, run.Groups,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs for repo, newest first. A limit of
// zero or less returns every run.
func (d *DB) ListRuns(repo string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`
		SELECT id, repo, started_at, finished_at, issues, dropped, group_count
		FROM runs WHERE repo = ?
		ORDER BY finished_at DESC LIMIT ?`,
		repo, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.Repo, &startedAt, &finishedAt, &r.Issues, &r.Dropped, &r.Groups); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		r.FinishedAt, _ = time.Parse(timeLayout, finishedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
