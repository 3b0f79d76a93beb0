// Package pipeline wires fetching, aggregation, correlation and notification
// into the steps behind the CLI commands.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/github"
	"github.com/jacklau/icedb/internal/notify"
	"github.com/jacklau/icedb/internal/pubsub"
	"github.com/jacklau/icedb/internal/records"
	"github.com/jacklau/icedb/internal/store"
)

// Stage names a step of a pipeline run.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageRead      Stage = "read"
	StageAggregate Stage = "aggregate"
	StageWrite     Stage = "write"
	StageMirror    Stage = "mirror"
	StageCorrelate Stage = "correlate"
	StageNotify    Stage = "notify"
)

// Progress is published on the broker as stages start and finish.
type Progress struct {
	RunID string
	Stage Stage
	// Count is the number of items the stage produced, set on Finished.
	Count int
	Err   error
}

// IssueSource lists the issues of a repository carrying a label.
type IssueSource interface {
	ListLabeled(ctx context.Context, owner, repo, label string) ([]github.Issue, error)
}

// Options locates the repository and record files a Pipeline works on.
type Options struct {
	Owner            string
	Repo             string
	Label            string
	IssuesPath       string
	FingerprintsPath string
}

// FullName returns "owner/repo".
func (o Options) FullName() string {
	return o.Owner + "/" + o.Repo
}

// Deps holds the dependencies for the Pipeline. Store, Notifier and
// Broker are optional.
type Deps struct {
	Source     IssueSource
	Aggregator *aggregate.Aggregator
	Engine     *dedup.Engine
	Store      store.Store
	Notifier   notify.Notifier
	Broker     *pubsub.Broker[Progress]
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline runs the fetch, sort and dup steps over one repository.
type Pipeline struct {
	opts Options
	deps Deps
}

// New creates a new Pipeline with the given options and dependencies.
func New(opts Options, deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Aggregator == nil {
		deps.Aggregator = aggregate.New(aggregate.WithLogger(deps.Logger))
	}
	if deps.Engine == nil {
		deps.Engine = dedup.NewEngine(dedup.WithLogger(deps.Logger))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{opts: opts, deps: deps}
}

// FetchResult describes a completed fetch.
type FetchResult struct {
	RunID  string
	Issues int
	Open   int
}

// Fetch downloads every issue carrying the configured label and atomically
// replaces the issue file with them.
func (p *Pipeline) Fetch(ctx context.Context) (*FetchResult, error) {
	if p.deps.Source == nil {
		return nil, errors.New("no issue source configured")
	}
	runID := uuid.NewString()
	logger := p.deps.Logger.With("run", runID, "repo", p.opts.FullName())

	var issues []github.Issue
	err := p.stage(runID, StageFetch, func() (int, error) {
		var err error
		issues, err = p.deps.Source.ListLabeled(ctx, p.opts.Owner, p.opts.Repo, p.opts.Label)
		return len(issues), err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching issues: %w", err)
	}

	err = p.stage(runID, StageWrite, func() (int, error) {
		return len(issues), records.WriteIssues(p.opts.IssuesPath, issues)
	})
	if err != nil {
		return nil, fmt.Errorf("writing issues: %w", err)
	}

	if p.deps.Store != nil {
		p.stage(runID, StageMirror, func() (int, error) {
			if err := p.deps.Store.ReplaceIssues(p.opts.FullName(), issues); err != nil {
				logger.Error("failed to mirror issues", "error", err)
				return 0, err
			}
			return len(issues), nil
		})
	}

	res := &FetchResult{RunID: runID, Issues: len(issues)}
	for _, issue := range issues {
		if issue.IsOpen() {
			res.Open++
		}
	}
	logger.Info("fetched issues", "issues", res.Issues, "open", res.Open, "path", p.opts.IssuesPath)
	return res, nil
}

// SortResult describes a completed aggregation run.
type SortResult struct {
	RunID  string
	Stats  aggregate.Stats
	Groups []aggregate.Group
}

// Sort reads the issue file, groups issues by fingerprint and atomically
// replaces the fingerprint file. When a store is configured the issues,
// groups and run are mirrored to it; a mirror failure is logged and does
// not fail the run.
func (p *Pipeline) Sort(ctx context.Context) (*SortResult, error) {
	runID := uuid.NewString()
	started := p.deps.Now()
	logger := p.deps.Logger.With("run", runID, "repo", p.opts.FullName())

	var issues []github.Issue
	err := p.stage(runID, StageRead, func() (int, error) {
		var err error
		issues, err = records.ReadIssues(p.opts.IssuesPath)
		return len(issues), err
	})
	if err != nil {
		return nil, fmt.Errorf("reading issues: %w", err)
	}

	var groups []aggregate.Group
	var stats aggregate.Stats
	err = p.stage(runID, StageAggregate, func() (int, error) {
		var err error
		groups, stats, err = p.deps.Aggregator.Aggregate(ctx, issues)
		return len(groups), err
	})
	if err != nil {
		return nil, fmt.Errorf("aggregating: %w", err)
	}

	err = p.stage(runID, StageWrite, func() (int, error) {
		return len(groups), records.WriteGroups(p.opts.FingerprintsPath, groups)
	})
	if err != nil {
		return nil, fmt.Errorf("writing fingerprints: %w", err)
	}

	if p.deps.Store != nil {
		p.stage(runID, StageMirror, func() (int, error) {
			err := p.mirror(runID, started, issues, groups, stats)
			if err != nil {
				logger.Error("failed to mirror run", "error", err)
			}
			return len(groups), err
		})
	}

	logger.Info("sorted issues",
		"issues", stats.Issues,
		"dropped", stats.Dropped,
		"groups", stats.Groups,
		"path", p.opts.FingerprintsPath,
		"duration", p.deps.Now().Sub(started),
	)
	return &SortResult{RunID: runID, Stats: stats, Groups: groups}, nil
}

func (p *Pipeline) mirror(runID string, started time.Time, issues []github.Issue, groups []aggregate.Group, stats aggregate.Stats) error {
	run := &store.Run{
		ID:         runID,
		Repo:       p.opts.FullName(),
		StartedAt:  started,
		FinishedAt: p.deps.Now(),
		Issues:     stats.Issues,
		Dropped:    stats.Dropped,
		Groups:     stats.Groups,
	}
	return p.deps.Store.SaveRun(run, issues, groups)
}

// DupResult holds the duplicate signals of a correlation pass.
type DupResult struct {
	Signals []dedup.Signal
	Issues  map[int]github.Issue
	// Notified is true when a notifier accepted the report.
	Notified bool
	// NotifyErr is the notifier's error, if it failed.
	NotifyErr error
}

// Dup reads the fingerprint and issue files and returns the groups that
// look like duplicate reports. When sendNotify is set and a notifier is
// configured, non-empty results are sent to it.
func (p *Pipeline) Dup(ctx context.Context, sendNotify bool) (*DupResult, error) {
	runID := uuid.NewString()
	logger := p.deps.Logger.With("run", runID, "repo", p.opts.FullName())

	var groups []aggregate.Group
	var issues []github.Issue
	err := p.stage(runID, StageRead, func() (int, error) {
		var err error
		if groups, err = records.ReadGroups(p.opts.FingerprintsPath); err != nil {
			return 0, err
		}
		issues, err = records.ReadIssues(p.opts.IssuesPath)
		return len(groups), err
	})
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	res := &DupResult{Issues: dedup.IndexIssues(issues)}
	p.stage(runID, StageCorrelate, func() (int, error) {
		res.Signals = p.deps.Engine.Correlate(groups, res.Issues)
		return len(res.Signals), nil
	})
	logger.Info("correlated fingerprints", "groups", len(groups), "signals", len(res.Signals))

	if !sendNotify || p.deps.Notifier == nil || len(res.Signals) == 0 {
		return res, nil
	}

	res.NotifyErr = p.stage(runID, StageNotify, func() (int, error) {
		report := notify.Report{Repo: p.opts.FullName(), Signals: res.Signals, Issues: res.Issues}
		return len(res.Signals), p.deps.Notifier.Notify(ctx, report)
	})
	if res.NotifyErr != nil {
		logger.Error("notification failed", "error", res.NotifyErr)
	} else {
		res.Notified = true
	}
	return res, nil
}

// stage runs fn between Started and Finished (or Failed) progress events.
func (p *Pipeline) stage(runID string, stage Stage, fn func() (int, error)) error {
	p.deps.Broker.Publish(pubsub.Started, Progress{RunID: runID, Stage: stage})
	n, err := fn()
	if err != nil {
		p.deps.Broker.Publish(pubsub.Failed, Progress{RunID: runID, Stage: stage, Err: err})
		return err
	}
	p.deps.Broker.Publish(pubsub.Finished, Progress{RunID: runID, Stage: stage, Count: n})
	return nil
}
