package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/github"
)

// Report is one correlation pass worth announcing.
type Report struct {
	Repo    string
	Signals []dedup.Signal
	// Issues resolves linked issue numbers to their snapshot state.
	Issues map[int]github.Issue
}

// Notifier sends notifications about duplicate signals.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: slog.Default()}
}

// Notify sends the report to all configured notifiers.
// It logs errors from individual notifiers but continues to the rest.
// Returns the last error encountered, if any.
func (m *MultiNotifier) Notify(ctx context.Context, report Report) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			m.logger.Error("notifier failed", "notifier", fmt.Sprintf("%T", n), "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// NewNotifier creates a Notifier based on the notifyType.
// Supported types: "slack", "discord", "both".
func NewNotifier(notifyType string, slackURL, discordURL string) (Notifier, error) {
	switch notifyType {
	case "slack":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for slack notifier")
		}
		return NewSlackNotifier(slackURL), nil
	case "discord":
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for discord notifier")
		}
		return NewDiscordNotifier(discordURL), nil
	case "both":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for 'both' notifier")
		}
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for 'both' notifier")
		}
		return NewMultiNotifier(
			NewSlackNotifier(slackURL),
			NewDiscordNotifier(discordURL),
		), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %q", notifyType)
	}
}

// FromWebhooks picks the notifier type from whichever webhooks are set.
// It returns nil when neither is.
func FromWebhooks(slackURL, discordURL string) Notifier {
	var kind string
	switch {
	case slackURL != "" && discordURL != "":
		kind = "both"
	case slackURL != "":
		kind = "slack"
	case discordURL != "":
		kind = "discord"
	default:
		return nil
	}
	n, _ := NewNotifier(kind, slackURL, discordURL)
	return n
}
