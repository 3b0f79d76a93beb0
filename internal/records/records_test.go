package records

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
)

func strPtr(s string) *string { return &s }

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestReadIssuesIgnoresUnknownFields(t *testing.T) {
	path := writeFile(t,
		`{"id":1,"number":100,"state":"open","title":"ICE","body":"boom","labels":[{"id":5,"name":"I-ICE","description":null,"color":"e10c02"}],"comments":3}`+"\n"+
			`{"id":2,"number":101,"state":"closed","title":"ICE 2","body":null,"labels":[]}`+"\r\n"+
			"\n")

	issues, err := ReadIssues(path)
	if err != nil {
		t.Fatalf("ReadIssues failed: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Number != 100 || !issues[0].IsOpen() || issues[0].BodyText() != "boom" {
		t.Errorf("unexpected first issue: %+v", issues[0])
	}
	if issues[0].Labels[0].Name != "I-ICE" || issues[0].Labels[0].Description != nil {
		t.Errorf("unexpected label: %+v", issues[0].Labels[0])
	}
	if issues[1].Body != nil || issues[1].State != github.StateClosed {
		t.Errorf("unexpected second issue: %+v", issues[1])
	}
}

func TestReadIssuesMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
	}{
		{"bad json", `{"number":1,"state":"open"}` + "\n" + `{"number":`, 2},
		{"unknown state", `{"number":1,"state":"merged"}`, 1},
		{"missing number", `{"state":"open","title":"x"}`, 1},
		{"missing state", `{"number":3,"title":"x"}`, 1},
		{"invalid utf8", "{\"number\":1,\"state\":\"open\",\"body\":\"\xff\"}", 1},
		{"not an object", `[1,2,3]`, 1},
		{"lone high surrogate", `{"number":1,"state":"open","body":"a\ud800b"}`, 1},
		{"lone low surrogate", `{"number":1,"state":"open","body":"\uDC00"}`, 1},
		{"high surrogate at end", `{"number":1,"state":"open","title":"x\ud83d"}`, 1},
		{"reversed pair", `{"number":1,"state":"open","body":"\ude00\ud83d"}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content)
			_, err := ReadIssues(path)

			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("expected MalformedRecordError, got %v", err)
			}
			if mre.Line != tt.line {
				t.Errorf("line = %d, want %d", mre.Line, tt.line)
			}
			if mre.Path != path {
				t.Errorf("path = %q, want %q", mre.Path, path)
			}
		})
	}
}

func TestReadIssuesAcceptsPairedSurrogates(t *testing.T) {
	path := writeFile(t,
		`{"number":1,"state":"open","body":"crash \ud83d\ude00 \u00e9"}`+"\n"+
			`{"number":2,"state":"open","body":"literal \\ud800 text"}`+"\n")

	issues, err := ReadIssues(path)
	if err != nil {
		t.Fatalf("ReadIssues failed: %v", err)
	}
	if got := issues[0].BodyText(); got != "crash \U0001F600 \u00e9" {
		t.Errorf("body = %q", got)
	}
	if got := issues[1].BodyText(); got != `literal \ud800 text` {
		t.Errorf("body = %q", got)
	}
}

func TestReadIssuesMissingFile(t *testing.T) {
	_, err := ReadIssues(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestGroupsRoundTrip(t *testing.T) {
	groups := []aggregate.Group{
		{
			Fingerprint: fingerprint.Fingerprint{
				Backtrace:  []string{},
				ICEMessage: strPtr("cannot relate '_ <= 'a & more"),
				QueryStack: []string{"#0 [typeck]", "#0 [typeck]"},
			},
			Issues: []int{3, 17, 204},
		},
		{
			Fingerprint: fingerprint.Fingerprint{
				Flags:   []string{"-C", "opt-level=3"},
				Version: &fingerprint.Version{CommitHash: "abc", Release: "1.70.0"},
			},
			Issues: []int{5},
		},
	}

	path := filepath.Join(t.TempDir(), "db", "ices.jsonl")
	if err := WriteGroups(path, groups); err != nil {
		t.Fatalf("WriteGroups failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(data), "'_ <= 'a & more") {
		t.Errorf("expected unescaped message in output, got %s", data)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("expected 2 lines, got %d", n)
	}

	back, err := ReadGroups(path)
	if err != nil {
		t.Fatalf("ReadGroups failed: %v", err)
	}
	if len(back) != len(groups) {
		t.Fatalf("expected %d groups, got %d", len(groups), len(back))
	}
	for i := range groups {
		if !back[i].Fingerprint.Equal(groups[i].Fingerprint) {
			t.Errorf("group %d fingerprint changed: %+v", i, back[i].Fingerprint)
		}
		if !slices.Equal(back[i].Issues, groups[i].Issues) {
			t.Errorf("group %d issues changed: %v", i, back[i].Issues)
		}
	}
	if back[0].Fingerprint.Backtrace == nil {
		t.Error("empty backtrace decoded as absent")
	}
	if back[1].Fingerprint.Backtrace != nil {
		t.Error("absent backtrace decoded as present")
	}

	// Writing the decoded groups again must reproduce the file byte for byte.
	again := filepath.Join(t.TempDir(), "again.jsonl")
	if err := WriteGroups(again, back); err != nil {
		t.Fatalf("WriteGroups failed: %v", err)
	}
	data2, _ := os.ReadFile(again)
	if string(data) != string(data2) {
		t.Errorf("rewrite differs:\n%s\nvs\n%s", data, data2)
	}
}

func TestReadGroupsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `{"fingerprint":{"ice_message":"x"},"issues":[1],"extra":true}`},
		{"unknown fingerprint field", `{"fingerprint":{"message":"x"},"issues":[1]}`},
		{"missing fingerprint", `{"issues":[1]}`},
		{"missing issues", `{"fingerprint":{"ice_message":"x"}}`},
		{"empty fingerprint", `{"fingerprint":{},"issues":[1]}`},
		{"unsorted issues", `{"fingerprint":{"ice_message":"x"},"issues":[2,1]}`},
		{"repeated issue", `{"fingerprint":{"ice_message":"x"},"issues":[1,1]}`},
		{"wrong type", `{"fingerprint":{"flags":"-C"},"issues":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content+"\n")
			_, err := ReadGroups(path)
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("expected MalformedRecordError, got %v", err)
			}
		})
	}
}

func TestWriteGroupsKeepsOldFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ices.jsonl")
	if err := os.WriteFile(path, []byte("previous\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	err := writeLines(path, 3, func(enc *json.Encoder, i int) error {
		if i == 1 {
			return errors.New("disk full")
		}
		return enc.Encode(i)
	})
	if err == nil {
		t.Fatal("expected error")
	}

	data, _ := os.ReadFile(path)
	if string(data) != "previous\n" {
		t.Errorf("destination was modified: %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected temp file to be removed, found %d entries", len(entries))
	}
}

func TestWriteIssuesRoundTrip(t *testing.T) {
	desc := "Issue: The compiler panicked"
	issues := []github.Issue{
		{ID: 1, Number: 9, State: github.StateOpen, Title: "t", Body: strPtr("b"), Labels: []github.Label{{ID: 2, Name: "I-ICE", Description: &desc}}},
		{ID: 3, Number: 4, State: github.StateClosed, Title: "u", Labels: []github.Label{}},
	}
	path := filepath.Join(t.TempDir(), "issues.jsonl")
	if err := WriteIssues(path, issues); err != nil {
		t.Fatalf("WriteIssues failed: %v", err)
	}
	back, err := ReadIssues(path)
	if err != nil {
		t.Fatalf("ReadIssues failed: %v", err)
	}
	if len(back) != 2 || back[0].Number != 9 || back[1].Body != nil {
		t.Errorf("unexpected issues: %+v", back)
	}
	if *back[0].Labels[0].Description != desc {
		t.Errorf("label description lost: %+v", back[0].Labels[0])
	}
}
