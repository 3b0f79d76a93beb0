package github

import (
	"encoding/json"
	"fmt"
)

// State is the open/closed state of an issue.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return s == StateOpen || s == StateClosed
}

// UnmarshalJSON rejects states other than "open" and "closed".
func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding issue state: %w", err)
	}
	st := State(raw)
	if !st.Valid() {
		return fmt.Errorf("unknown issue state %q", raw)
	}
	*s = st
	return nil
}

// Label is a label attached to an issue.
type Label struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Issue is an issue as fetched from the tracker. Number is its identity.
type Issue struct {
	ID     int64   `json:"id"`
	Number int     `json:"number"`
	State  State   `json:"state"`
	Title  string  `json:"title"`
	Body   *string `json:"body"`
	Labels []Label `json:"labels"`
}

// BodyText returns the body, or "" when the issue has none.
func (i Issue) BodyText() string {
	if i.Body == nil {
		return ""
	}
	return *i.Body
}

// IsOpen reports whether the issue is open.
func (i Issue) IsOpen() bool {
	return i.State == StateOpen
}

// HasLabel reports whether the issue carries a label with the given name.
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}
