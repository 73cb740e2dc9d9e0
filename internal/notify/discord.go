package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// Embed colors per opportunity tier (Discord's decimal RGB).
const (
	colorInstant  = 0x2ECC71 // green
	colorStrong   = 0xF1C40F // yellow
	colorModerate = 0xE67E22 // orange
	colorNeutral  = 0x95A5A6 // grey, lifecycle events
)

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses a
// default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color"`
}

// Send posts the message to the Discord webhook as a single embed, colored by
// opportunity tier.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	payload := struct {
		Embeds []discordEmbed `json:"embeds"`
	}{
		Embeds: []discordEmbed{{
			Title:       msg.Title,
			Description: msg.Body,
			URL:         msg.URL,
			Color:       tierColor(msg.Tier),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func tierColor(tier domain.Flag) int {
	switch tier {
	case domain.FlagInstant:
		return colorInstant
	case domain.FlagStrong:
		return colorStrong
	case domain.FlagModerate:
		return colorModerate
	default:
		return colorNeutral
	}
}
