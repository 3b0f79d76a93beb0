package notify

import (
	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
)

func strPtr(s string) *string { return &s }

func testReport() Report {
	return Report{
		Repo: "rust-lang/rust",
		Signals: []dedup.Signal{
			{
				Group: aggregate.Group{
					Fingerprint: fingerprint.Fingerprint{
						ICEMessage: strPtr("unexpected region"),
						QueryStack: []string{"#0 [typeck] type-checking `f`", "#1 [analysis] running analysis passes"},
					},
					Issues: []int{10, 20},
				},
				AnyOpen: true,
			},
			{
				Group: aggregate.Group{
					Fingerprint: fingerprint.Fingerprint{
						PanicMessage: strPtr("index out of bounds"),
						QueryStack:   []string{},
					},
					Issues: []int{30, 40},
				},
			},
		},
		Issues: map[int]github.Issue{
			10: {Number: 10, State: github.StateOpen},
			20: {Number: 20, State: github.StateClosed},
			30: {Number: 30, State: github.StateClosed},
		},
	}
}
