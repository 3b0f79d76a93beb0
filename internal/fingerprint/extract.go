package fingerprint

import (
	"regexp"
	"strings"
)

// Field names as they appear in persisted records.
const (
	FieldBacktrace    = "backtrace"
	FieldFlags        = "flags"
	FieldICEMessage   = "ice_message"
	FieldPanicMessage = "panic_message"
	FieldQueryStack   = "query_stack"
	FieldVersion      = "version"
)

// matcher extracts a single field. Matchers share no state and each one sees
// the whole body.
type matcher struct {
	re    *regexp.Regexp
	apply func(f *Fingerprint, sub []string)
}

const queryStackHeader = "query stack during panic:"

var (
	// The path is non-greedy so Windows drive letters ("C:\...") do not end it early.
	iceMessageRe = regexp.MustCompile(`(?m)^error: internal compiler error: [^\r\n]+?:\d+:\d+: ([^\r\n]+)`)

	panicMessageRe = regexp.MustCompile(`(?m)^thread 'rustc' panicked at '((?:[^'\\\r\n]|\\[^\r\n])*)', [^\r\n]+`)

	backtraceRe = regexp.MustCompile(`(?m)^stack backtrace:\r?\n((?:[ \t]+(?:\d+:|at )[^\r\n]*(?:\r?\n|\r?\z))+)`)

	flagsRe = regexp.MustCompile(`(?m)^note: compiler flags: ([^\r\n]+)`)

	queryStackRe = regexp.MustCompile(`(?ms)^query stack during panic:\r?\n(.*?)^end of query stack`)

	versionRe = regexp.MustCompile(`(?m)^binary: [^\r\n]*\r?\n` +
		`commit-hash: ([^\r\n]+)\r?\n` +
		`commit-date: ([^\r\n]+)\r?\n` +
		`host: ([^\r\n]+)\r?\n` +
		`release: ([^\r\n]+)\r?\n` +
		`LLVM version: ([^\r\n]+)`)
)

var matchers = []matcher{
	{
		re:    backtraceRe,
		apply: func(f *Fingerprint, sub []string) {
			var frames []string
			for _, line := range splitLines(sub[1]) {
				if line = strings.TrimSpace(line); line != "" {
					frames = append(frames, line)
				}
			}
			f.Backtrace = frames
		},
	},
	{
		re:    flagsRe,
		apply: func(f *Fingerprint, sub []string) {
			f.Flags = strings.Split(sub[1], " ")
		},
	},
	{
		re:    iceMessageRe,
		apply: func(f *Fingerprint, sub []string) {
			msg := sub[1]
			f.ICEMessage = &msg
		},
	},
	{
		re:    panicMessageRe,
		apply: func(f *Fingerprint, sub []string) {
			msg := sub[1]
			f.PanicMessage = &msg
		},
	},
	{
		re:    queryStackRe,
		apply: func(f *Fingerprint, sub []string) {
			lines := splitLines(sub[1])
			// A header left open by an earlier block does not own the
			// footer; the block starts after the last header.
			for i := len(lines) - 1; i >= 0; i-- {
				if lines[i] == queryStackHeader {
					lines = lines[i+1:]
					break
				}
			}
			// No frames, or only blank lines, is no query stack.
			for _, line := range lines {
				if strings.TrimSpace(line) != "" {
					f.QueryStack = lines
					return
				}
			}
		},
	},
	{
		re:    versionRe,
		apply: func(f *Fingerprint, sub []string) {
			f.Version = &Version{
				CommitHash:  sub[1],
				CommitDate:  sub[2],
				Host:        sub[3],
				Release:     sub[4],
				LLVMVersion: sub[5],
			}
		},
	},
}

// Extract builds a Fingerprint from a crash report body. It never fails: a
// section that does not match its pattern leaves the field absent.
func Extract(body string) Fingerprint {
	var f Fingerprint
	for _, m := range matchers {
		if sub := m.re.FindStringSubmatch(body); sub != nil {
			m.apply(&f, sub)
		}
	}
	return f
}

// Present returns the names of the fields set in f, in declaration order.
func (f Fingerprint) Present() []string {
	var fields []string
	if f.Backtrace != nil {
		fields = append(fields, FieldBacktrace)
	}
	if f.Flags != nil {
		fields = append(fields, FieldFlags)
	}
	if f.ICEMessage != nil {
		fields = append(fields, FieldICEMessage)
	}
	if f.PanicMessage != nil {
		fields = append(fields, FieldPanicMessage)
	}
	if f.QueryStack != nil {
		fields = append(fields, FieldQueryStack)
	}
	if f.Version != nil {
		fields = append(fields, FieldVersion)
	}
	return fields
}

// splitLines splits s on "\n", drops a trailing "\r" from each line and
// ignores the empty remainder after a final newline.
func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
