package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/retry"
)

// SlackNotifier sends duplicate reports to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	policy     retry.Policy
}

// NewSlackNotifier creates a SlackNotifier with the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		policy: retry.Policy{MaxAttempts: 2},
	}
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents a text object in Slack Block Kit.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackPayload is the top-level Slack message payload.
type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

// BuildSlackPayload creates the Slack Block Kit message payload for a report.
func BuildSlackPayload(report Report) slackPayload {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type: "plain_text",
				Text: "Possible Duplicate ICEs",
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s*: %s share a crash signature",
					report.Repo, Pluralize(len(report.Signals), "group")),
			},
		},
	}

	for i, sig := range report.Signals {
		if i == maxSignalsShown {
			blocks = append(blocks, slackBlock{
				Type: "section",
				Text: &slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("_and %d more_", len(report.Signals)-maxSignalsShown),
				},
			})
			break
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: slackSignalText(report, sig)},
		})
	}

	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: dedup.Limitation}},
	})

	return slackPayload{Blocks: blocks}
}

func slackSignalText(report Report, sig dedup.Signal) string {
	var b strings.Builder
	fp := sig.Group.Fingerprint
	fmt.Fprintf(&b, "*%s*\n", FormatSignature(fp))
	if q := FormatTopQuery(fp); q != "" {
		fmt.Fprintf(&b, "Top query: `%s`\n", q)
	}

	links := make([]string, len(sig.Group.Issues))
	for i, n := range sig.Group.Issues {
		links[i] = fmt.Sprintf("<%s|#%d>", issueURL(report.Repo, n), n)
	}
	fmt.Fprintf(&b, "Issues: %s", strings.Join(links, ", "))
	if !sig.AnyOpen {
		b.WriteString(" _(all closed)_")
	}
	return b.String()
}

// Notify sends a Slack notification for the given report.
func (s *SlackNotifier) Notify(ctx context.Context, report Report) error {
	body, err := json.Marshal(BuildSlackPayload(report))
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	if err := postJSON(ctx, s.client, s.policy, "slack", s.webhookURL, body); err != nil {
		return fmt.Errorf("slack notify failed: %w", err)
	}
	return nil
}
