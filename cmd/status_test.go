package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
	"github.com/jacklau/icedb/internal/store"
)

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		name     string
		t        time.Time
		expected string
	}{
		{
			name:     "just now",
			t:        time.Now().Add(-10 * time.Second),
			expected: "just now",
		},
		{
			name:     "1 minute ago",
			t:        time.Now().Add(-1 * time.Minute),
			expected: "1 minute ago",
		},
		{
			name:     "5 minutes ago",
			t:        time.Now().Add(-5 * time.Minute),
			expected: "5 minutes ago",
		},
		{
			name:     "1 hour ago",
			t:        time.Now().Add(-1 * time.Hour),
			expected: "1 hour ago",
		},
		{
			name:     "3 hours ago",
			t:        time.Now().Add(-3 * time.Hour),
			expected: "3 hours ago",
		},
		{
			name:     "1 day ago",
			t:        time.Now().Add(-24 * time.Hour),
			expected: "1 day ago",
		},
		{
			name:     "7 days ago",
			t:        time.Now().Add(-7 * 24 * time.Hour),
			expected: "7 days ago",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTimeAgo(tt.t)
			if result != tt.expected {
				t.Errorf("formatTimeAgo() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int64
		expected string
	}{
		{"zero", 0, "0 B"},
		{"small", 512, "512 B"},
		{"1KB", 1024, "1.0 KB"},
		{"1.5KB", 1536, "1.5 KB"},
		{"1MB", 1024 * 1024, "1.0 MB"},
		{"1GB", 1024 * 1024 * 1024, "1.0 GB"},
		{"2.5MB", 2621440, "2.5 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatBytes(tt.bytes)
			if result != tt.expected {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, result, tt.expected)
			}
		})
	}
}

func TestDbFileSize_NonExistent(t *testing.T) {
	_, err := dbFileSize("/nonexistent/path/to/db.sqlite")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, []store.RepoStats{
		{Repo: "a/one", IssueCount: 10, OpenCount: 4, GroupCount: 6, SharedCount: 2, StrongShared: 1},
		{Repo: "b/two", IssueCount: 3, OpenCount: 3, GroupCount: 1,
			LastRun: &store.Run{FinishedAt: time.Now().Add(-2 * time.Hour)}},
	})

	out := buf.String()
	for _, want := range []string{"a/one", "b/two", "never", "2 hours ago", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestShowRepo(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	issues := []github.Issue{
		{Number: 10, State: github.StateOpen},
		{Number: 20, State: github.StateClosed},
		{Number: 30, State: github.StateOpen},
		{Number: 40, State: github.StateOpen},
	}
	groups := []aggregate.Group{
		{Fingerprint: fingerprint.Fingerprint{Flags: []string{"-O"}}, Issues: []int{40}},
		{Fingerprint: fingerprint.Fingerprint{ICEMessage: strPtr("weak one")}, Issues: []int{10, 40}},
		{Fingerprint: fingerprint.Fingerprint{ICEMessage: strPtr("boom"), QueryStack: []string{"#0"}}, Issues: []int{10, 20, 30}},
	}
	now := time.Now()
	if err := db.SaveRun(&store.Run{Repo: "o/r", StartedAt: now, FinishedAt: now}, issues, groups); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	var buf bytes.Buffer
	if err := showRepo(&buf, db, "o/r"); err != nil {
		t.Fatalf("showRepo failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"o/r",
		"Largest shared fingerprints:",
		"3 issues",
		"strong",
		"#10 (open), #20 (closed), #30 (open)",
		"weak one",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "boom") > strings.Index(out, "weak one") {
		t.Errorf("expected the larger group first:\n%s", out)
	}
	if strings.Contains(out, "1 issue") {
		t.Errorf("unshared group should not be listed:\n%s", out)
	}
}

func TestPrintSharedGroupsNone(t *testing.T) {
	var buf bytes.Buffer
	printSharedGroups(&buf, []aggregate.Group{{Issues: []int{1}}}, nil)
	if !strings.Contains(buf.String(), "No fingerprint is shared") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
