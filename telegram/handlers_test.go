package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/menu"
	"github.com/DanArmor/melatonin-bot/roster"
)

type outCall struct {
	kind      string
	chatID    int64
	messageID int
	text      string
	rows      [][]menu.Button
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []outCall
}

func (f *fakeTransport) record(c outCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string, rows [][]menu.Button) error {
	f.record(outCall{kind: "send", chatID: chatID, text: text, rows: rows})
	return nil
}

func (f *fakeTransport) EditMessageText(_ context.Context, chatID int64, messageID int, text string) error {
	f.record(outCall{kind: "edit_text", chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeTransport) EditMessageReplyMarkup(_ context.Context, chatID int64, messageID int, rows [][]menu.Button) error {
	f.record(outCall{kind: "edit_markup", chatID: chatID, messageID: messageID, rows: rows})
	return nil
}

func (f *fakeTransport) AnswerCallback(context.Context, string) error {
	f.record(outCall{kind: "answer"})
	return nil
}

type fakeStore struct {
	users    map[int64]db.User
	creators []db.Creator
	subs     map[[2]int64]bool
	failUser error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[int64]db.User{},
		creators: []db.Creator{
			{ID: 1, FirstName: "Ava", LastName: "Lune", GroupName: "Alpha", Emoji: "🌙"},
			{ID: 2, FirstName: "Bo", LastName: "Kai", GroupName: "Alpha"},
		},
		subs: map[[2]int64]bool{},
	}
}

func (s *fakeStore) EnsureUser(_ context.Context, u db.User) (bool, error) {
	if s.failUser != nil {
		return false, s.failUser
	}
	if _, ok := s.users[u.ExternalUserID]; ok {
		return false, nil
	}
	s.users[u.ExternalUserID] = u
	return true, nil
}

func (s *fakeStore) GroupCounts(_ context.Context, userID int64) ([]db.GroupCount, error) {
	g := db.GroupCount{Group: "Alpha"}
	for _, c := range s.creators {
		g.Total++
		if s.subs[[2]int64{userID, c.ID}] {
			g.Subscribed++
		}
	}
	return []db.GroupCount{g}, nil
}

func (s *fakeStore) GroupMembers(_ context.Context, userID int64, _ string) ([]db.MemberState, error) {
	var out []db.MemberState
	for _, c := range s.creators {
		out = append(out, db.MemberState{Creator: c, Subscribed: s.subs[[2]int64{userID, c.ID}]})
	}
	return out, nil
}

func (s *fakeStore) CreatorByName(_ context.Context, first, last string) (db.Creator, error) {
	for _, c := range s.creators {
		if c.FirstName == first && c.LastName == last {
			return c, nil
		}
	}
	return db.Creator{}, fmt.Errorf("creator: %w", db.ErrNotFound)
}

func (s *fakeStore) ToggleSubscription(_ context.Context, userID, creatorID int64) (bool, error) {
	k := [2]int64{userID, creatorID}
	s.subs[k] = !s.subs[k]
	return s.subs[k], nil
}

func newTestHandlers() (*Handlers, *fakeStore, *fakeTransport) {
	store := newFakeStore()
	out := &fakeTransport{}
	m := menu.New(store, roster.Order{"Alpha": 1})
	return NewHandlers(m, store, out), store, out
}

func textUpdate(userID int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:   5,
		Text: text,
		From: &models.User{ID: userID, FirstName: "Ann", Username: "ann"},
		Chat: models.Chat{ID: userID * 10},
	}}
}

func callbackUpdate(userID int64, data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:      "cb",
		From:    models.User{ID: userID, FirstName: "Ann"},
		Data:    data,
		Message: models.MaybeInaccessibleMessage{Message: &models.Message{ID: 99, Chat: models.Chat{ID: userID * 10}}},
	}}
}

func TestHandleStart(t *testing.T) {
	h, store, out := newTestHandlers()
	h.HandleStart(context.Background(), nil, textUpdate(7, "/start"))

	require.Contains(t, store.users, int64(7))
	assert.Equal(t, int64(70), store.users[7].ChatID)
	require.Len(t, out.calls, 1)
	c := out.calls[0]
	assert.Equal(t, "send", c.kind)
	assert.Equal(t, int64(70), c.chatID)
	assert.Equal(t, menu.GreetingText, c.text)
	assert.Equal(t, "Alpha (0/2)", c.rows[0][0].Label)
}

func TestHandleWavesAndAbout(t *testing.T) {
	h, _, out := newTestHandlers()
	h.HandleWaves(context.Background(), nil, textUpdate(7, "/waves"))
	h.HandleAbout(context.Background(), nil, textUpdate(7, "/about"))
	h.HandleDefault(context.Background(), nil, textUpdate(7, "hi"))

	require.Len(t, out.calls, 3)
	assert.Equal(t, menu.RootText, out.calls[0].text)
	assert.Equal(t, AboutText, out.calls[1].text)
	assert.Nil(t, out.calls[1].rows)
	assert.Equal(t, UnknownCommandText, out.calls[2].text)
}

func TestHandleStartStoreFailure(t *testing.T) {
	h, store, out := newTestHandlers()
	store.failUser = errors.New("db down")
	h.HandleStart(context.Background(), nil, textUpdate(7, "/start"))

	require.Len(t, out.calls, 1)
	assert.Equal(t, menu.FailureText, out.calls[0].text)
	assert.Empty(t, out.calls[0].rows)
}

func TestHandleCallbackGroupThenToggle(t *testing.T) {
	h, store, out := newTestHandlers()
	ctx := context.Background()

	h.HandleCallback(ctx, nil, callbackUpdate(7, "wave_Alpha"))
	require.Len(t, out.calls, 3)
	assert.Equal(t, outCall{kind: "edit_text", chatID: 70, messageID: 99, text: menu.GroupText}, out.calls[0])
	assert.Equal(t, "edit_markup", out.calls[1].kind)
	assert.Equal(t, "Ava Lune 🌙", out.calls[1].rows[0][0].Label)
	assert.Equal(t, "answer", out.calls[2].kind)

	out.calls = nil
	h.HandleCallback(ctx, nil, callbackUpdate(7, "member_Ava Lune wave_Alpha"))
	require.Len(t, out.calls, 2, "toggle edits only the keyboard")
	assert.Equal(t, "edit_markup", out.calls[0].kind)
	assert.Equal(t, "✅Ava Lune 🌙", out.calls[0].rows[0][0].Label)
	assert.True(t, store.subs[[2]int64{7, 1}])

	out.calls = nil
	h.HandleCallback(ctx, nil, callbackUpdate(7, "member_back wave_none"))
	require.Len(t, out.calls, 3)
	assert.Equal(t, menu.RootText, out.calls[0].text)
	assert.Equal(t, "Alpha (1/2)", out.calls[1].rows[0][0].Label)
}

func TestHandleCallbackFailureShowsNotice(t *testing.T) {
	h, _, out := newTestHandlers()
	h.HandleCallback(context.Background(), nil, callbackUpdate(7, "member_Nobody Here wave_Alpha"))

	require.Len(t, out.calls, 2)
	assert.Equal(t, outCall{kind: "edit_text", chatID: 70, messageID: 99, text: menu.FailureText}, out.calls[0])
	assert.Equal(t, "answer", out.calls[1].kind)
}

func TestHandleCallbackInaccessibleMessage(t *testing.T) {
	h, _, out := newTestHandlers()
	u := &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb",
		From: models.User{ID: 7},
		Data: "wave_Alpha",
		Message: models.MaybeInaccessibleMessage{
			InaccessibleMessage: &models.InaccessibleMessage{Chat: models.Chat{ID: 70}, MessageID: 12},
		},
	}}
	h.HandleCallback(context.Background(), nil, u)
	require.NotEmpty(t, out.calls)
	assert.Equal(t, 12, out.calls[0].messageID)
}

func TestHandleDefaultAnswersStrayCallback(t *testing.T) {
	h, _, out := newTestHandlers()
	h.HandleDefault(context.Background(), nil, callbackUpdate(7, "legacy_button"))

	require.Len(t, out.calls, 1)
	assert.Equal(t, "answer", out.calls[0].kind)
}
