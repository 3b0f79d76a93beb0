package github

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gogithub "github.com/google/go-github/v60/github"
	"golang.org/x/time/rate"

	"github.com/jacklau/icedb/internal/retry"
)

const (
	defaultPerPage = 100

	// defaultRequestsPerSecond paces page requests. GitHub allows 5000
	// authenticated requests per hour, a little over one per second.
	defaultRequestsPerSecond = 1.0
)

// Fetcher lists issues from a GitHub repository. It follows pagination,
// paces page requests, waits out rate limits and retries server errors.
type Fetcher struct {
	client  *gogithub.Client
	limiter *rate.Limiter
	perPage int
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithPerPage sets the page size, capped at GitHub's maximum of 100.
func WithPerPage(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 && n <= defaultPerPage {
			f.perPage = n
		}
	}
}

// WithRequestsPerSecond sets the page request rate. Zero or negative disables pacing.
func WithRequestsPerSecond(rps float64) FetcherOption {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a Fetcher using the given client.
func NewFetcher(client *gogithub.Client, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		perPage: defaultPerPage,
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ListLabeled returns every issue, open or closed, in owner/repo that carries
// label. Pull requests are skipped.
func (f *Fetcher) ListLabeled(ctx context.Context, owner, repo, label string) ([]Issue, error) {
	logger := f.logger.With("repo", owner+"/"+repo, "label", label)

	opts := &gogithub.IssueListByRepoOptions{
		State:     "all",
		Sort:      "created",
		Direction: "asc",
		ListOptions: gogithub.ListOptions{
			PerPage: f.perPage,
		},
	}
	if label != "" {
		opts.Labels = []string{label}
	}

	var all []Issue
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		issues, resp, err := f.fetchPage(ctx, owner, repo, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", max(opts.Page, 1), err)
		}

		for _, gh := range issues {
			if gh.IsPullRequest() {
				continue
			}
			all = append(all, convertIssue(gh))
		}
		logger.Debug("fetched page", "page", max(opts.Page, 1), "issues", len(issues), "total", len(all))

		if wait := throttleWait(resp.Rate, time.Now()); wait > 0 {
			logger.Info("rate limit low, waiting for reset", "remaining", resp.Rate.Remaining, "wait", wait)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	logger.Info("fetch complete", "issues", len(all))
	return all, nil
}

// Get returns a single issue. Pull requests are rejected.
func (f *Fetcher) Get(ctx context.Context, owner, repo string, number int) (Issue, error) {
	logger := f.logger.With("repo", owner+"/"+repo, "issue", number)

	if err := f.limiter.Wait(ctx); err != nil {
		return Issue{}, err
	}

	var gh *gogithub.Issue
	_, err := f.do(ctx, logger, func() (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		gh, resp, err = f.client.Issues.Get(ctx, owner, repo, number)
		return resp, err
	})
	if err != nil {
		return Issue{}, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	if gh.IsPullRequest() {
		return Issue{}, fmt.Errorf("#%d is a pull request", number)
	}
	return convertIssue(gh), nil
}

// fetchPage requests one page, retrying rate limit and server errors.
func (f *Fetcher) fetchPage(ctx context.Context, owner, repo string, opts *gogithub.IssueListByRepoOptions, logger *slog.Logger) ([]*gogithub.Issue, *gogithub.Response, error) {
	var issues []*gogithub.Issue
	resp, err := f.do(ctx, logger, func() (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		issues, resp, err = f.client.Issues.ListByRepo(ctx, owner, repo, opts)
		return resp, err
	})
	return issues, resp, err
}

// do runs call under the fetcher's retry policy: rate limits wait for the
// reset, server errors back off, other failures return at once.
func (f *Fetcher) do(ctx context.Context, logger *slog.Logger, call func() (*gogithub.Response, error)) (*gogithub.Response, error) {
	policy := retry.Policy{
		MaxAttempts: maxRetries + 1,
		BaseDelay:   baseBackoff,
		MaxDelay:    maxBackoff,
		Sleep:       f.sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Warn("request failed, retrying",
				"attempt", attempt,
				"max_retries", maxRetries,
				"wait", wait,
				"error", err,
			)
		},
	}

	var resp *gogithub.Response
	err := policy.Do(ctx, func() error {
		var err error
		resp, err = call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return classifyError(err, resp, time.Now())
	})
	return resp, err
}

// convertIssue converts a go-github Issue to our Issue type.
func convertIssue(gh *gogithub.Issue) Issue {
	issue := Issue{
		ID:     gh.GetID(),
		Number: gh.GetNumber(),
		State:  State(gh.GetState()),
		Title:  gh.GetTitle(),
	}
	if gh.Body != nil {
		body := *gh.Body
		issue.Body = &body
	}
	for _, l := range gh.Labels {
		label := Label{
			ID:   l.GetID(),
			Name: l.GetName(),
		}
		if l.Description != nil {
			desc := *l.Description
			label.Description = &desc
		}
		issue.Labels = append(issue.Labels, label)
	}
	if issue.Labels == nil {
		issue.Labels = []Label{}
	}
	return issue
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
