// Package records reads and writes line-delimited JSON record files: one
// issue or one fingerprint group per line.
package records

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
)

// maxLineSize bounds a single record. Issue bodies with full backtraces and
// environment dumps can run to several hundred kilobytes.
const maxLineSize = 16 << 20

// MalformedRecordError reports a line that could not be parsed into the
// expected record shape.
type MalformedRecordError struct {
	Path string
	Line int
	Err  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s:%d: malformed record: %v", e.Path, e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

var (
	errInvalidUTF8    = errors.New("line is not valid UTF-8")
	errLoneSurrogate  = errors.New("unpaired UTF-16 surrogate escape")
	errMissingNumber  = errors.New(`missing "number"`)
	errMissingState   = errors.New(`missing "state"`)
	errMissingPrint   = errors.New(`missing "fingerprint"`)
	errMissingIssues  = errors.New(`missing "issues"`)
	errEmptyPrint     = errors.New("fingerprint has no fields")
	errUnsortedIssues = errors.New("issue numbers not strictly ascending")
)

// groupRecord is the on-disk shape of an aggregate.Group.
type groupRecord struct {
	Fingerprint *fingerprint.Fingerprint `json:"fingerprint"`
	Issues      []int                    `json:"issues"`
}

// ReadIssues reads an issue file. Unknown fields are ignored so raw tracker
// payloads can be stored as-is.
func ReadIssues(path string) ([]github.Issue, error) {
	var issues []github.Issue
	err := readLines(path, func(line []byte) error {
		var issue github.Issue
		if err := json.Unmarshal(line, &issue); err != nil {
			return err
		}
		// A zero value means the key was missing: GitHub numbers start at 1.
		if issue.Number == 0 {
			return errMissingNumber
		}
		if issue.State == "" {
			return errMissingState
		}
		issues = append(issues, issue)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// ReadGroups reads a fingerprint group file. Records must match the written
// shape exactly.
func ReadGroups(path string) ([]aggregate.Group, error) {
	var groups []aggregate.Group
	err := readLines(path, func(line []byte) error {
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()

		var rec groupRecord
		if err := dec.Decode(&rec); err != nil {
			return err
		}
		if rec.Fingerprint == nil {
			return errMissingPrint
		}
		if rec.Issues == nil {
			return errMissingIssues
		}
		if rec.Fingerprint.IsEmpty() {
			return errEmptyPrint
		}
		for i := 1; i < len(rec.Issues); i++ {
			if rec.Issues[i] <= rec.Issues[i-1] {
				return errUnsortedIssues
			}
		}
		groups = append(groups, aggregate.Group{
			Fingerprint: *rec.Fingerprint,
			Issues:      rec.Issues,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// WriteIssues atomically replaces path with one JSON line per issue.
func WriteIssues(path string, issues []github.Issue) error {
	return writeLines(path, len(issues), func(enc *json.Encoder, i int) error {
		return enc.Encode(issues[i])
	})
}

// WriteGroups atomically replaces path with one JSON line per group, in the
// order given.
func WriteGroups(path string, groups []aggregate.Group) error {
	return writeLines(path, len(groups), func(enc *json.Encoder, i int) error {
		g := groups[i]
		return enc.Encode(groupRecord{Fingerprint: &g.Fingerprint, Issues: g.Issues})
	})
}

// EncodeGroups writes groups in the same format as WriteGroups to w.
func EncodeGroups(w io.Writer, groups []aggregate.Group) error {
	enc := newEncoder(w)
	for _, g := range groups {
		if err := enc.Encode(groupRecord{Fingerprint: &g.Fingerprint, Issues: g.Issues}); err != nil {
			return err
		}
	}
	return nil
}

func readLines(path string, parse func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !utf8.Valid(line) {
			return &MalformedRecordError{Path: path, Line: lineNo, Err: errInvalidUTF8}
		}
		// encoding/json would silently decode these to U+FFFD.
		if hasLoneSurrogate(line) {
			return &MalformedRecordError{Path: path, Line: lineNo, Err: errLoneSurrogate}
		}
		if err := parse(line); err != nil {
			return &MalformedRecordError{Path: path, Line: lineNo, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// hasLoneSurrogate reports whether line contains a \uXXXX escape for a
// UTF-16 surrogate that is not part of a high-low pair.
func hasLoneSurrogate(line []byte) bool {
	for i := 0; i < len(line); i++ {
		if line[i] != '\\' {
			continue
		}
		if i+1 >= len(line) || line[i+1] != 'u' {
			i++ // skip the escaped byte, which may itself be a backslash
			continue
		}
		r, ok := hexEscape(line, i)
		if !ok {
			i++
			continue
		}
		switch {
		case utf16.IsSurrogate(r) && r < 0xdc00:
			low, ok := hexEscape(line, i+6)
			if !ok || low < 0xdc00 || low > 0xdfff {
				return true
			}
			i += 11
		case utf16.IsSurrogate(r):
			return true
		default:
			i += 5
		}
	}
	return false
}

// hexEscape decodes the \uXXXX escape starting at line[i].
func hexEscape(line []byte, i int) (rune, bool) {
	if i+6 > len(line) || line[i] != '\\' || line[i+1] != 'u' {
		return 0, false
	}
	var r rune
	for _, c := range line[i+2 : i+6] {
		switch {
		case c >= '0' && c <= '9':
			r = r<<4 | rune(c-'0')
		case c >= 'a' && c <= 'f':
			r = r<<4 | rune(c-'a'+10)
		case c >= 'A' && c <= 'F':
			r = r<<4 | rune(c-'A'+10)
		default:
			return 0, false
		}
	}
	return r, true
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// writeLines encodes n records into a temporary file next to path and renames
// it into place only after every record was written and synced.
func writeLines(path string, n int, encode func(enc *json.Encoder, i int) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	enc := newEncoder(w)
	for i := 0; i < n; i++ {
		if err := encode(enc, i); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
