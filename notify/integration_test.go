package notify

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/holodex"
	"github.com/DanArmor/melatonin-bot/telegram"
	"github.com/DanArmor/melatonin-bot/testutil"
)

// Full cycle over HTTP: Holodex listing in, Telegram sendPhoto out.
func TestRunCycleOverHTTP(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(15 * time.Minute)

	hdx := testutil.NewMockHolodexServer(t)
	hdx.SetVideos(map[string]any{
		"id":              "v1",
		"title":           "Morning chat",
		"type":            "stream",
		"status":          "upcoming",
		"start_scheduled": start.Format(time.RFC3339),
		"available_at":    start.Format(time.RFC3339),
		"channel":         map[string]any{"id": "UC123", "name": "Ava Lune"},
	})
	tg := testutil.NewMockTelegramServer(t)
	bot, err := telegram.New("123:abc", tgbot.WithServerURL(tg.URL))
	require.NoError(t, err)

	store := &memStore{
		creators:    []db.Creator{ava()},
		subscribers: map[int64][]db.User{1: {{ExternalUserID: 10, ChatID: 100}}},
	}
	alerts := &fakeAlerter{}
	n := New(&holodex.Client{BaseURL: hdx.URL, APIKey: "key"}, store, bot, alerts, Options{
		Query:       holodex.UpcomingStreams("Nijisanji", []string{"en"}, 1, 50),
		UTCOffset:   3 * time.Hour,
		OffsetLabel: "GMT+3 Europe/Moscow",
	})

	rep, err := n.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)

	photos := tg.Calls("sendPhoto")
	require.Len(t, photos, 1)
	assert.Equal(t, "100", photos[0].Params["chat_id"])
	assert.Equal(t, "https://img.youtube.com/vi/v1/0.jpg", photos[0].Params["photo"])
	assert.Equal(t, "MarkdownV2", photos[0].Params["parse_mode"])
	assert.True(t, strings.HasPrefix(photos[0].Params["caption"], "Стрим Ava Lune начнется через"))
	require.Len(t, store.ledger, 1)

	// Holodex outage alerts and leaves the ledger alone
	hdx.FailWith(http.StatusInternalServerError)
	_, err = n.RunCycle(context.Background())
	require.Error(t, err)
	assert.Len(t, alerts.texts, 1)
	assert.Len(t, store.ledger, 1)
	assert.Len(t, tg.Calls("sendPhoto"), 1)
}
