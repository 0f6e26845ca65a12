// Package notify sends export lifecycle notifications to a Slack
// incoming webhook. Notifications are best effort: a failed webhook
// never fails the export.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tabx-cli/tabx/internal/config"
)

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is one styled block in a Slack message.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
}

// Field is a short key/value pair inside an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

const (
	colorGreen = "#36a64f"
	colorRed   = "#dc3545"
)

// Notifier posts export outcomes to Slack. A nil or disabled config
// produces a notifier whose methods are no-ops.
type Notifier struct {
	cfg    *config.SlackConfig
	client *http.Client
}

// New creates a Notifier from the optional Slack configuration.
func New(cfg *config.SlackConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsEnabled reports whether notifications will actually be sent.
func (n *Notifier) IsEnabled() bool {
	return n.cfg != nil && n.cfg.Enabled && n.cfg.WebhookURL != ""
}

// ExportCompleted announces a finished export.
func (n *Notifier) ExportCompleted(runID, table, format, filePath string, duration time.Duration) error {
	return n.send(SlackMessage{
		IconEmoji: ":white_check_mark:",
		Attachments: []Attachment{{
			Color: colorGreen,
			Title: "Export Completed",
			Fields: []Field{
				{Title: "Run", Value: runID, Short: true},
				{Title: "Table", Value: table, Short: true},
				{Title: "Format", Value: format, Short: true},
				{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
				{Title: "File", Value: filePath},
			},
		}},
	})
}

// ExportFailed announces a failed or timed-out export.
func (n *Notifier) ExportFailed(runID, table, errMsg string) error {
	return n.send(SlackMessage{
		IconEmoji: ":x:",
		Attachments: []Attachment{{
			Color: colorRed,
			Title: "Export Failed",
			Text:  errMsg,
			Fields: []Field{
				{Title: "Run", Value: runID, Short: true},
				{Title: "Table", Value: table, Short: true},
			},
		}},
	})
}

func (n *Notifier) send(msg SlackMessage) error {
	if !n.IsEnabled() {
		return nil
	}
	msg.Channel = n.cfg.Channel
	msg.Username = n.cfg.Username

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	resp, err := n.client.Post(n.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
