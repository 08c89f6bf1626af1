package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirePostsPayload(t *testing.T) {
	var got Payload
	var path, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL+"/", "melatonin-bot")
	require.NoError(t, c.Fire(context.Background(), "holodex unreachable"))

	assert.Equal(t, "/notify/fire", path)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, Payload{From: "melatonin-bot", Theme: "fire", Text: "holodex unreachable"}, got)
}

func TestFireNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := New(server.URL, "bot").Fire(context.Background(), "x")
	assert.Error(t, err)
}

func TestFireUnconfigured(t *testing.T) {
	assert.NoError(t, New("", "bot").Fire(context.Background(), "x"))
	var nilClient *Client
	assert.NoError(t, nilClient.Fire(context.Background(), "x"))
}
