package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
)

func strPtr(s string) *string { return &s }

func testSignals() ([]dedup.Signal, map[int]github.Issue) {
	signals := []dedup.Signal{
		{
			Group: aggregate.Group{
				Fingerprint: fingerprint.Fingerprint{
					ICEMessage: strPtr("unexpected region"),
					QueryStack: []string{"#0 [typeck] type-checking `main`"},
				},
				Issues: []int{10, 20, 30},
			},
			AnyOpen: true,
		},
		{
			Group: aggregate.Group{
				Fingerprint: fingerprint.Fingerprint{
					ICEMessage: strPtr("no type for node"),
					QueryStack: []string{},
				},
				Issues: []int{40, 99},
			},
			Missing: []int{99},
		},
	}
	issues := dedup.IndexIssues([]github.Issue{
		{Number: 10, State: github.StateOpen},
		{Number: 20, State: github.StateClosed},
		{Number: 30, State: github.StateOpen},
		{Number: 40, State: github.StateClosed},
	})
	return signals, issues
}

func TestPrintSignals(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	signals, issues := testSignals()
	var buf bytes.Buffer
	printSignals(&buf, "rust-lang/rust", signals, issues)
	out := buf.String()

	for _, want := range []string{
		"Possible duplicates in rust-lang/rust: 2 groups",
		"● unexpected region",
		"query:  #0 [typeck] type-checking `main`",
		"issues: #10 (open), #20 (closed), #30 (open)",
		"2 open reports of the same crash",
		"○ no type for node",
		"#99 (unknown)",
		"not in issue file: [99]",
		"note: " + dedup.Limitation,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "query:") != 1 {
		t.Errorf("empty query stack should not print a query line:\n%s", out)
	}
}

func TestPrintSignalsNone(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	var buf bytes.Buffer
	printSignals(&buf, "rust-lang/rust", nil, nil)
	if !strings.Contains(buf.String(), "0 groups") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFilterOpen(t *testing.T) {
	signals, _ := testSignals()
	open := filterOpen(signals)
	if len(open) != 1 || open[0].Group.Issues[0] != 10 {
		t.Errorf("filterOpen = %+v, want only the group with #10", open)
	}
	if got := filterOpen(nil); got != nil {
		t.Errorf("filterOpen(nil) = %v, want nil", got)
	}
}
