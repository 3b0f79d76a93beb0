package fingerprint

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
)

// Version holds the fields printed by `rustc --version --verbose`.
type Version struct {
	CommitHash  string `json:"commit_hash"`
	CommitDate  string `json:"commit_date"`
	Host        string `json:"host"`
	Release     string `json:"release"`
	LLVMVersion string `json:"llvm_version"`
}

// Fingerprint is the crash signature extracted from one issue body.
//
// Every field is optional. A nil slice or pointer means the matcher for that
// field did not fire; a non-nil empty slice is a present but empty sequence
// and is kept distinct when encoded.
type Fingerprint struct {
	Backtrace    []string `json:"backtrace"`
	Flags        []string `json:"flags"`
	ICEMessage   *string  `json:"ice_message"`
	PanicMessage *string  `json:"panic_message"`
	QueryStack   []string `json:"query_stack"`
	Version      *Version `json:"version"`
}

// IsEmpty reports whether no field is present.
func (f Fingerprint) IsEmpty() bool {
	return f.Backtrace == nil &&
		f.Flags == nil &&
		f.ICEMessage == nil &&
		f.PanicMessage == nil &&
		f.QueryStack == nil &&
		f.Version == nil
}

// IsStrong reports whether the fingerprint carries both an ICE message and a
// query stack.
func (f Fingerprint) IsStrong() bool {
	return f.ICEMessage != nil && f.QueryStack != nil
}

// HasMessage reports whether either an ICE message or a panic message is present.
func (f Fingerprint) HasMessage() bool {
	return f.ICEMessage != nil || f.PanicMessage != nil
}

// Equal reports whether every field of f and other is equal.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return Compare(f, other) == 0
}

// Key returns a canonical string form of f. Two fingerprints have the same key
// iff they are Equal.
func (f Fingerprint) Key() string {
	data, err := Marshal(f)
	if err != nil {
		// Strings, slices and pointers to plain structs always encode.
		panic("fingerprint: encoding key: " + err.Error())
	}
	return string(data)
}

// Marshal encodes f as compact JSON without HTML escaping, so messages such as
// "'_ <= 'a" stay readable in the persisted records.
func Marshal(f Fingerprint) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Compare returns -1, 0 or +1 ordering a before, equal to or after b.
// Fields compare in declaration order and absent values sort before present ones.
func Compare(a, b Fingerprint) int {
	if c := compareSeq(a.Backtrace, b.Backtrace); c != 0 {
		return c
	}
	if c := compareSeq(a.Flags, b.Flags); c != 0 {
		return c
	}
	if c := compareOpt(a.ICEMessage, b.ICEMessage); c != 0 {
		return c
	}
	if c := compareOpt(a.PanicMessage, b.PanicMessage); c != 0 {
		return c
	}
	if c := compareSeq(a.QueryStack, b.QueryStack); c != 0 {
		return c
	}
	return compareVersion(a.Version, b.Version)
}

func compareSeq(a, b []string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return slices.Compare(a, b)
}

func compareOpt(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(*a, *b)
}

func compareVersion(a, b *Version) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	for _, pair := range [][2]string{
		{a.CommitHash, b.CommitHash},
		{a.CommitDate, b.CommitDate},
		{a.Host, b.Host},
		{a.Release, b.Release},
		{a.LLVMVersion, b.LLVMVersion},
	} {
		if c := strings.Compare(pair[0], pair[1]); c != 0 {
			return c
		}
	}
	return 0
}
