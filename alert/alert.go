// Package alert posts operator alerts to the external monitoring service.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/DanArmor/melatonin-bot/telemetry"
)

// Theme is the monitoring category for fatal-ish bot conditions.
const Theme = "fire"

// Payload is the JSON body the monitoring service accepts.
type Payload struct {
	From  string `json:"from"`
	Theme string `json:"theme"`
	Text  string `json:"text"`
}

// Client fires alerts at <BaseURL>/notify/fire. An empty BaseURL disables delivery.
type Client struct {
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

// New returns a client with a short request timeout.
func New(baseURL, from string) *Client {
	telemetry.Init()
	return &Client{BaseURL: baseURL, From: from, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Fire sends text to the monitoring service. Delivery failures are returned to the caller,
// which logs them; nothing retries.
func (c *Client) Fire(ctx context.Context, text string) error {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "alert"))
	if c == nil || c.BaseURL == "" {
		log.Warn("monitoring endpoint not configured, alert dropped", slog.String("text", text))
		return nil
	}
	endpoint, err := url.JoinPath(c.BaseURL, "notify", Theme)
	if err != nil {
		return fmt.Errorf("alert url: %w", err)
	}
	body, err := json.Marshal(Payload{From: c.From, Theme: Theme, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		if telemetry.AlertsFailed != nil {
			telemetry.AlertsFailed.Inc()
		}
		return fmt.Errorf("post alert: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		if telemetry.AlertsFailed != nil {
			telemetry.AlertsFailed.Inc()
		}
		return fmt.Errorf("post alert: status %d", resp.StatusCode)
	}
	if telemetry.AlertsFired != nil {
		telemetry.AlertsFired.Inc()
	}
	log.Info("alert fired", slog.String("text", text))
	return nil
}
