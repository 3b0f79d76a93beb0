package dedup

import (
	"log/slog"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/github"
)

// Limitation describes what exact-match correlation cannot find.
const Limitation = "duplicates are matched by exact fingerprint equality only; " +
	"crashes whose reports differ in paths, line numbers or other incidental text are not merged"

const defaultMinIssues = 2

// Signal is a fingerprint group that looks like a set of duplicate reports.
type Signal struct {
	Group aggregate.Group
	// AnyOpen is true when at least one linked issue is still open.
	AnyOpen bool
	// Missing lists linked issue numbers absent from the issue snapshot.
	Missing []int
}

// OpenIssues returns the linked issue numbers that resolve to open issues.
func (s Signal) OpenIssues(issues map[int]github.Issue) []int {
	var open []int
	for _, n := range s.Group.Issues {
		if issue, ok := issues[n]; ok && issue.IsOpen() {
			open = append(open, n)
		}
	}
	return open
}

// Engine flags fingerprint groups that link several issues with a strong
// signature.
type Engine struct {
	minIssues   int
	messageOnly bool
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinIssues sets how many distinct issues a group must link. Values below
// two are raised to two: a single issue is never its own duplicate.
func WithMinIssues(n int) Option {
	return func(e *Engine) {
		if n < defaultMinIssues {
			n = defaultMinIssues
		}
		e.minIssues = n
	}
}

// WithMessageOnly accepts a panic message in place of an ICE message when
// deciding whether a signature is strong. A query stack is still required.
func WithMessageOnly() Option {
	return func(e *Engine) { e.messageOnly = true }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a new Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		minIssues: defaultMinIssues,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IndexIssues maps issues by number. Later entries win on repeats.
func IndexIssues(issues []github.Issue) map[int]github.Issue {
	byNumber := make(map[int]github.Issue, len(issues))
	for _, issue := range issues {
		byNumber[issue.Number] = issue
	}
	return byNumber
}

// Correlate returns a Signal for every group that links at least minIssues
// issues and has a strong fingerprint, in the order groups were given.
//
// Issue numbers missing from issues are logged and treated as closed. The
// fingerprint and issue files may be captured at different times, so a
// mismatch is expected and never fatal.
func (e *Engine) Correlate(groups []aggregate.Group, issues map[int]github.Issue) []Signal {
	var signals []Signal
	for _, g := range groups {
		if len(g.Issues) < e.minIssues || !e.isStrong(g) {
			continue
		}

		sig := Signal{Group: g}
		for _, n := range g.Issues {
			issue, ok := issues[n]
			if !ok {
				sig.Missing = append(sig.Missing, n)
				e.logger.Warn("fingerprint references unknown issue", "issue", n, "group", g.Issues)
				continue
			}
			if issue.IsOpen() {
				sig.AnyOpen = true
			}
		}
		signals = append(signals, sig)
	}

	e.logger.Debug("correlated fingerprint groups", "groups", len(groups), "signals", len(signals))
	return signals
}

func (e *Engine) isStrong(g aggregate.Group) bool {
	fp := g.Fingerprint
	if e.messageOnly {
		return fp.HasMessage() && fp.QueryStack != nil
	}
	return fp.IsStrong()
}
