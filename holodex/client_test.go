package holodex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestQueryValues(t *testing.T) {
	v := UpcomingStreams("Nijisanji", []string{"en"}, 1, 50).Values()
	want := map[string]string{
		"org":                "Nijisanji",
		"lang":               "en",
		"type":               "stream",
		"status":             "upcoming",
		"include":            "description,channel_stats,live_info",
		"sort":               "start_scheduled",
		"order":              "asc",
		"max_upcoming_hours": "1",
		"limit":              "50",
	}
	for k, w := range want {
		if got := v.Get(k); got != w {
			t.Errorf("%s = %q, want %q", k, got, w)
		}
	}
	if empty := (Query{}).Values(); len(empty) != 0 {
		t.Errorf("empty query encoded to %v", empty)
	}
}

func TestClientVideos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/videos" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-APIKEY") != "test-key" {
			t.Errorf("missing or wrong X-APIKEY header")
		}
		if r.URL.Query().Get("org") != "Nijisanji" {
			t.Errorf("org not forwarded: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"vid1","title":"Morning chat","type":"stream","status":"upcoming",
			 "start_scheduled":"2024-05-01T12:20:00.000Z","available_at":"2024-05-01T12:20:00.000Z",
			 "channel":{"id":"UC123","name":"Ava Lune","org":"Nijisanji"}},
			{"id":"vid2","title":"No schedule","type":"stream","status":"upcoming",
			 "available_at":"2024-05-01T12:20:00.000Z","channel":"UC456"}
		]`))
	}))
	defer server.Close()

	c := &Client{BaseURL: server.URL + "/api/v2/", APIKey: "test-key", HTTPClient: server.Client()}
	videos, err := c.Videos(context.Background(), UpcomingStreams("Nijisanji", []string{"en"}, 1, 50))
	if err != nil {
		t.Fatalf("Videos() error = %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("got %d videos, want 2", len(videos))
	}
	v := videos[0]
	if v.ID != "vid1" || v.Channel.ID != "UC123" || v.Title != "Morning chat" {
		t.Errorf("unexpected first video %+v", v)
	}
	if !v.StartScheduled.Equal(time.Date(2024, 5, 1, 12, 20, 0, 0, time.UTC)) {
		t.Errorf("start_scheduled = %v", v.StartScheduled)
	}
	if videos[1].Channel.ID != "UC456" {
		t.Errorf("bare-string channel not decoded: %+v", videos[1].Channel)
	}
	if !videos[1].StartScheduled.IsZero() {
		t.Errorf("missing start_scheduled should decode to zero, got %v", videos[1].StartScheduled)
	}
}

func TestClientVideosErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := &Client{BaseURL: server.URL, APIKey: "k"}
	_, err := c.Videos(context.Background(), Query{})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected StatusError 429, got %v", err)
	}
	if !strings.Contains(se.Body, "rate limited") {
		t.Errorf("body = %q", se.Body)
	}

	if _, err := (&Client{BaseURL: server.URL}).Videos(context.Background(), Query{}); err == nil {
		t.Error("expected error for empty api key")
	}
}
