// Package aggregate groups issues by the fingerprint extracted from their
// bodies.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
)

// ErrInvalidBody is returned when an issue body is not valid UTF-8.
var ErrInvalidBody = errors.New("issue body is not valid UTF-8")

// Group is a distinct fingerprint and the issues that produced it.
type Group struct {
	Fingerprint fingerprint.Fingerprint
	// Issues is sorted ascending with no repeats.
	Issues []int
}

// Stats summarizes one aggregation run.
type Stats struct {
	Issues  int // issues examined
	Dropped int // issues whose fingerprint had no fields
	Groups  int // distinct fingerprints
}

// Aggregator extracts fingerprints from issues and groups equal ones.
type Aggregator struct {
	workers int
	logger  *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithWorkers sets how many issues are extracted concurrently. Values below
// one mean sequential extraction.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n < 1 {
			n = 1
		}
		a.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		workers: 1,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate extracts a fingerprint from every issue and returns one group per
// distinct non-empty fingerprint, sorted by fingerprint.Compare. The result
// does not depend on the order of issues.
//
// An invalid body aborts the whole run; no partial result is returned.
func (a *Aggregator) Aggregate(ctx context.Context, issues []github.Issue) ([]Group, Stats, error) {
	prints, err := a.extractAll(ctx, issues)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Issues: len(issues)}

	type entry struct {
		fp     fingerprint.Fingerprint
		issues map[int]struct{}
	}
	byKey := make(map[string]*entry)

	for i, fp := range prints {
		if fp.IsEmpty() {
			stats.Dropped++
			a.logger.Debug("no fingerprint", "issue", issues[i].Number)
			continue
		}
		key := fp.Key()
		e, ok := byKey[key]
		if !ok {
			e = &entry{fp: fp, issues: make(map[int]struct{})}
			byKey[key] = e
		}
		e.issues[issues[i].Number] = struct{}{}
	}

	groups := make([]Group, 0, len(byKey))
	for _, e := range byKey {
		nums := make([]int, 0, len(e.issues))
		for n := range e.issues {
			nums = append(nums, n)
		}
		slices.Sort(nums)
		groups = append(groups, Group{Fingerprint: e.fp, Issues: nums})
	}
	slices.SortFunc(groups, func(x, y Group) int {
		return fingerprint.Compare(x.Fingerprint, y.Fingerprint)
	})

	stats.Groups = len(groups)
	a.logger.Info("aggregated fingerprints",
		"issues", stats.Issues,
		"dropped", stats.Dropped,
		"groups", stats.Groups,
	)
	return groups, stats, nil
}

// extractAll runs the extractor over every issue body, up to a.workers at a
// time. Results are indexed like issues.
func (a *Aggregator) extractAll(ctx context.Context, issues []github.Issue) ([]fingerprint.Fingerprint, error) {
	prints := make([]fingerprint.Fingerprint, len(issues))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i := range issues {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			body := issues[i].BodyText()
			if !utf8.ValidString(body) {
				return fmt.Errorf("issue #%d: %w", issues[i].Number, ErrInvalidBody)
			}
			prints[i] = fingerprint.Extract(body)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return prints, nil
}
