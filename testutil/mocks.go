package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockHolodexServer serves canned /videos responses.
type MockHolodexServer struct {
	*httptest.Server

	mu     sync.Mutex
	videos []map[string]any
	status int
	Calls  int
}

// NewMockHolodexServer creates a server whose BaseURL is URL (no /api/v2 prefix).
func NewMockHolodexServer(t *testing.T) *MockHolodexServer {
	t.Helper()
	m := &MockHolodexServer{status: http.StatusOK}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.Calls++
		if r.URL.Path != "/videos" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-APIKEY") == "" {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		if m.status != http.StatusOK {
			http.Error(w, http.StatusText(m.status), m.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.videos) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// SetVideos replaces the listing returned by /videos.
func (m *MockHolodexServer) SetVideos(videos ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos = videos
}

// FailWith makes /videos answer with status until reset with http.StatusOK.
func (m *MockHolodexServer) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// TelegramCall is one recorded Bot API request.
type TelegramCall struct {
	Method string
	Params map[string]string
}

// MockTelegramServer mimics the Bot API at /bot<token>/<method>.
type MockTelegramServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls []TelegramCall
	fail  map[string]string // method -> description
}

// NewMockTelegramServer answers getMe, message sends and edits with canned results.
func NewMockTelegramServer(t *testing.T) *MockTelegramServer {
	t.Helper()
	m := &MockTelegramServer{fail: map[string]string{}}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		method := parts[len(parts)-1]

		params := map[string]string{}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				for k, v := range r.MultipartForm.Value {
					if len(v) > 0 {
						params[k] = v[0]
					}
				}
			}
		} else if err := r.ParseForm(); err == nil {
			for k := range r.Form {
				params[k] = r.Form.Get(k)
			}
		}

		m.mu.Lock()
		m.calls = append(m.calls, TelegramCall{Method: method, Params: params})
		desc, failing := m.fail[method]
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if failing {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 403, "description": desc}) //nolint:errcheck // test mock response
			return
		}

		var result any
		switch method {
		case "getMe":
			result = map[string]any{"id": 1, "is_bot": true, "first_name": "melatonin", "username": "melatonin_bot"}
		case "sendMessage", "sendPhoto", "editMessageText", "editMessageReplyMarkup":
			result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1, "type": "private"}}
		case "getUpdates":
			result = []any{}
		default:
			result = true
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result}) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// FailMethod makes method answer 403 with description.
func (m *MockTelegramServer) FailMethod(method, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[method] = description
}

// Calls returns recorded calls to method, or all calls when method is empty.
func (m *MockTelegramServer) Calls(method string) []TelegramCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TelegramCall
	for _, c := range m.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
