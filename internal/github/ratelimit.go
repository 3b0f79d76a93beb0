package github

import (
	"errors"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/icedb/internal/retry"
)

const (
	// throttleThreshold is the remaining request count below which we wait
	// for the window to reset before asking for the next page.
	throttleThreshold = 50

	// Server errors back off from baseBackoff, doubling up to maxBackoff.
	baseBackoff = 1 * time.Second
	maxBackoff  = 60 * time.Second

	// maxRetries bounds retries of a single request.
	maxRetries = 3

	// secondaryLimitWait is used when GitHub reports a secondary rate limit
	// without a Retry-After hint.
	secondaryLimitWait = 60 * time.Second
)

// throttleWait returns how long to pause before the next request given the
// rate observed on the last response. Zero means no pause.
func throttleWait(rate gogithub.Rate, now time.Time) time.Duration {
	if rate.Limit == 0 || rate.Remaining >= throttleThreshold {
		return 0
	}
	d := rate.Reset.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// classifyError tells retry.Policy how to handle a failed request: rate
// limits are retried once the server says so, server errors with the
// policy's backoff, and anything else not at all.
func classifyError(err error, resp *gogithub.Response, now time.Time) error {
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return retry.After(err, rateErr.Rate.Reset.Time.Sub(now))
	}

	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if abuseErr.RetryAfter != nil {
			return retry.After(err, *abuseErr.RetryAfter)
		}
		return retry.After(err, secondaryLimitWait)
	}

	if resp != nil && isServerError(resp.Response) {
		return err
	}
	return retry.Permanent(err)
}

func isServerError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
}
