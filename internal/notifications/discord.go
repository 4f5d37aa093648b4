package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Discord posts escalations to a Discord channel webhook.
type Discord struct {
	webhookURL string
	log        logrus.FieldLogger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, log logrus.FieldLogger) *Discord {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Discord{
		webhookURL: webhookURL,
		log:        log,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

func (d *Discord) send(ctx context.Context, msg discordMessage) error {
	if !d.Enabled() {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("discord: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyEmergency pings the channel with the emergency details.
func (d *Discord) NotifyEmergency(ctx context.Context, a EmergencyAlert) error {
	fields := []embedField{
		{Name: "Type", Value: a.Type, Inline: true},
		{Name: "Escalation", Value: a.EscalationStatus, Inline: true},
	}
	if a.Location != "" {
		fields = append(fields, embedField{Name: "Location", Value: a.Location})
	}
	if a.LoadNumber != "" {
		fields = append(fields, embedField{Name: "Load", Value: fmt.Sprintf("`%s`", a.LoadNumber), Inline: true})
	}
	if a.InjuriesReported != nil {
		fields = append(fields, embedField{Name: "Injuries", Value: yesNo(*a.InjuriesReported), Inline: true})
	}
	if a.LoadSecure != nil {
		fields = append(fields, embedField{Name: "Load secure", Value: yesNo(*a.LoadSecure), Inline: true})
	}
	if a.Notes != "" {
		fields = append(fields, embedField{Name: "Notes", Value: a.Notes})
	}
	fields = append(fields, embedField{Name: "Call", Value: fmt.Sprintf("`%s`", a.CallID)})

	at := a.ReportedAt
	if at.IsZero() {
		at = time.Now()
	}

	return d.send(ctx, discordMessage{
		Content: "@here",
		Embeds: []discordEmbed{{
			Title:     a.Title(),
			Color:     0xFF0000,
			Fields:    fields,
			Timestamp: at.UTC().Format(time.RFC3339),
		}},
	})
}
