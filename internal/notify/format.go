package notify

import (
	"fmt"
	"strings"

	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
)

// maxSignatureLen bounds the message shown for a signal.
const maxSignatureLen = 200

// maxSignalsShown caps the signals listed in one message. Discord rejects
// more than ten embeds per webhook call.
const maxSignalsShown = 10

// FormatSignature returns the ICE message of fp, or its panic message when
// there is none, shortened to maxSignatureLen runes.
func FormatSignature(fp fingerprint.Fingerprint) string {
	var msg string
	switch {
	case fp.ICEMessage != nil:
		msg = *fp.ICEMessage
	case fp.PanicMessage != nil:
		msg = *fp.PanicMessage
	default:
		return "(no message)"
	}
	return truncate(msg, maxSignatureLen)
}

// FormatTopQuery returns the innermost query of fp's query stack, or "" when
// the stack is absent or empty.
func FormatTopQuery(fp fingerprint.Fingerprint) string {
	if len(fp.QueryStack) == 0 {
		return ""
	}
	return truncate(strings.TrimSpace(fp.QueryStack[0]), maxSignatureLen)
}

// FormatIssues lists issue numbers with their state.
// Example: "#10 (open), #20 (closed), #99 (unknown)"
func FormatIssues(numbers []int, issues map[int]github.Issue) string {
	if len(numbers) == 0 {
		return "None"
	}
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		state := "unknown"
		if issue, ok := issues[n]; ok {
			state = string(issue.State)
		}
		parts[i] = fmt.Sprintf("#%d (%s)", n, state)
	}
	return strings.Join(parts, ", ")
}

// Pluralize returns "1 signal" or "3 signals".
func Pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func issueURL(repo string, number int) string {
	return fmt.Sprintf("https://github.com/%s/issues/%d", repo, number)
}
