// Package holodex is a minimal client for the Holodex v2 API: it lists upcoming streams
// for an organization, which the notifier then gates and matches against the roster.
package holodex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Holodex v2 endpoint.
const DefaultBaseURL = "https://holodex.net/api/v2"

// Client lists videos. The zero HTTPClient falls back to a client with a 30s timeout.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

// Query is the /videos filter set the notifier polls with.
type Query struct {
	Org              string
	Lang             []string
	Type             string
	Status           []string
	MaxUpcomingHours int
	Include          []string
	Sort             string
	Order            string
	Limit            int
}

// UpcomingStreams is the standing poll query: upcoming streams for org in the given
// languages, sorted by scheduled start.
func UpcomingStreams(org string, lang []string, lookaheadHours, limit int) Query {
	return Query{
		Org:              org,
		Lang:             lang,
		Type:             "stream",
		Status:           []string{"upcoming"},
		MaxUpcomingHours: lookaheadHours,
		Include:          []string{"description", "channel_stats", "live_info"},
		Sort:             "start_scheduled",
		Order:            "asc",
		Limit:            limit,
	}
}

// Values encodes the query as Holodex URL parameters. Empty fields are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("org", q.Org)
	set("lang", strings.Join(q.Lang, ","))
	set("type", q.Type)
	set("status", strings.Join(q.Status, ","))
	set("include", strings.Join(q.Include, ","))
	set("sort", q.Sort)
	set("order", q.Order)
	if q.MaxUpcomingHours > 0 {
		v.Set("max_upcoming_hours", strconv.Itoa(q.MaxUpcomingHours))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Channel is the channel a video belongs to. Some Holodex endpoints send only the id
// as a bare string; both shapes decode.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	EnglishName string `json:"english_name"`
	Org         string `json:"org"`
}

func (c *Channel) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &c.ID)
	}
	type plain Channel
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Channel(p)
	return nil
}

// Video is one stream candidate. Missing timestamps decode as the zero time.
type Video struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	TopicID        string    `json:"topic_id"`
	StartScheduled time.Time `json:"start_scheduled"`
	AvailableAt    time.Time `json:"available_at"`
	Channel        Channel   `json:"channel"`
}

// StatusError is a non-2xx response from Holodex.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("holodex: status %d: %s", e.StatusCode, e.Body)
}

// Videos runs one /videos request.
func (c *Client) Videos(ctx context.Context, q Query) ([]Video, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("holodex api key empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/videos", nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q.Values().Encode()
	req.Header.Set("X-APIKEY", c.APIKey)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("holodex videos: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	var out []Video
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode holodex videos: %w", err)
	}
	return out, nil
}
