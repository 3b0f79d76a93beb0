package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jacklau/icedb/internal/retry"
)

const (
	discordColorOpen   = 15158332 // red
	discordColorClosed = 9807270  // grey
)

// DiscordNotifier sends duplicate reports to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	policy     retry.Policy
}

// NewDiscordNotifier creates a DiscordNotifier with the given webhook URL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// discordEmbed represents a Discord embed object.
type discordEmbed struct {
	Title  string         `json:"title"`
	URL    string         `json:"url,omitempty"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
	Footer *discordFooter `json:"footer,omitempty"`
}

// discordField represents a field in a Discord embed.
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// discordFooter represents the footer of a Discord embed.
type discordFooter struct {
	Text string `json:"text"`
}

// discordPayload is the top-level Discord webhook payload.
type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

// BuildDiscordPayload creates one embed per signal, up to maxSignalsShown.
func BuildDiscordPayload(report Report) discordPayload {
	payload := discordPayload{
		Content: fmt.Sprintf("**%s**: %s share a crash signature",
			report.Repo, Pluralize(len(report.Signals), "group")),
		Embeds: []discordEmbed{},
	}

	for i, sig := range report.Signals {
		if i == maxSignalsShown {
			payload.Content += fmt.Sprintf(" (showing %d)", maxSignalsShown)
			break
		}
		fp := sig.Group.Fingerprint

		fields := []discordField{
			{
				Name:   "Issues",
				Value:  FormatIssues(sig.Group.Issues, report.Issues),
				Inline: false,
			},
		}
		if q := FormatTopQuery(fp); q != "" {
			fields = append(fields, discordField{
				Name:   "Top query",
				Value:  q,
				Inline: false,
			})
		}

		color := discordColorClosed
		if sig.AnyOpen {
			color = discordColorOpen
		}

		payload.Embeds = append(payload.Embeds, discordEmbed{
			Title:  truncate(FormatSignature(fp), 256),
			URL:    issueURL(report.Repo, sig.Group.Issues[0]),
			Color:  color,
			Fields: fields,
			Footer: &discordFooter{
				Text: fmt.Sprintf("icedb - %s", report.Repo),
			},
		})
	}

	return payload
}

// Notify sends a Discord notification for the given report.
func (d *DiscordNotifier) Notify(ctx context.Context, report Report) error {
	body, err := json.Marshal(BuildDiscordPayload(report))
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	if err := postJSON(ctx, d.client, d.policy, "discord", d.webhookURL, body); err != nil {
		return fmt.Errorf("discord notify failed: %w", err)
	}
	return nil
}
