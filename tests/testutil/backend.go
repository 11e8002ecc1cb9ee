package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/nhle/carrylink/internal/backend"
	"github.com/nhle/carrylink/internal/model"
	cursync "github.com/nhle/carrylink/internal/sync"
)

// FakeBackend is an httptest server that speaks the notification and
// token exchange endpoints under /api. Long-poll requests are held until
// a newer notification is pushed or Hold elapses.
type FakeBackend struct {
	Server *httptest.Server

	// Hold is how long a long-poll request waits for new data.
	Hold time.Duration

	mu            gosync.Mutex
	notifications map[string][]model.Notification
	credential    string
	exchangeCode  int
	listCode      int
	calls         []string
	changed       chan struct{}
}

// NewFakeBackend starts a FakeBackend and closes it when the test
// completes.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		Hold:          200 * time.Millisecond,
		notifications: make(map[string][]model.Notification),
		credential:    "be-123",
		changed:       make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/exchange", f.handleExchange)
	mux.HandleFunc("/api/notifications", f.handleList)
	mux.HandleFunc("/api/notifications/longpoll", f.handleLongPoll)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)

	return f
}

// BaseURL returns the API root to configure a backend.Client with.
func (f *FakeBackend) BaseURL() string {
	return f.Server.URL + "/api"
}

// Push stores n for identityKey and wakes held long-poll requests.
func (f *FakeBackend) Push(identityKey string, n model.Notification) {
	f.mu.Lock()
	f.notifications[identityKey] = append(f.notifications[identityKey], n)
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}

// SetCredential sets the credential returned by the exchange endpoint.
func (f *FakeBackend) SetCredential(credential string) {
	f.mu.Lock()
	f.credential = credential
	f.mu.Unlock()
}

// FailExchange makes the exchange endpoint answer with code. Zero restores
// normal behaviour.
func (f *FakeBackend) FailExchange(code int) {
	f.mu.Lock()
	f.exchangeCode = code
	f.mu.Unlock()
}

// FailList makes the initial sync endpoint answer with code. Zero
// restores normal behaviour.
func (f *FakeBackend) FailList(code int) {
	f.mu.Lock()
	f.listCode = code
	f.mu.Unlock()
}

// Calls returns the endpoints hit so far, in order, as "exchange", "list"
// or "longpoll:<last_time>".
func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many calls were made to the named endpoint.
func (f *FakeBackend) Count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name || len(c) > len(name) && c[:len(name)+1] == name+":" {
			n++
		}
	}
	return n
}

func (f *FakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeBackend) handleExchange(w http.ResponseWriter, r *http.Request) {
	f.record("exchange")

	var req backend.ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		writeJSON(w, http.StatusBadRequest, backend.ErrorResponse{Detail: "accessToken is required"})
		return
	}

	f.mu.Lock()
	code, credential := f.exchangeCode, f.credential
	f.mu.Unlock()

	if code != 0 {
		writeJSON(w, code, backend.ErrorResponse{Detail: "exchange failed"})
		return
	}
	writeJSON(w, http.StatusOK, backend.ExchangeResponse{AccessToken: credential})
}

func (f *FakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	f.record("list")

	key := r.URL.Query().Get("user_email")

	f.mu.Lock()
	code := f.listCode
	list := append([]model.Notification(nil), f.notifications[key]...)
	f.mu.Unlock()

	if code != 0 {
		writeJSON(w, code, backend.ErrorResponse{Detail: "list failed"})
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (f *FakeBackend) handleLongPoll(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("user_email")
	since := r.URL.Query().Get("last_time")
	f.record("longpoll:" + since)

	deadline := time.NewTimer(f.Hold)
	defer deadline.Stop()

	for {
		f.mu.Lock()
		var fresh []model.Notification
		for _, n := range f.notifications[key] {
			if cursync.CompareTimestamps(n.CreatedAt, since) > 0 {
				fresh = append(fresh, n)
			}
		}
		changed := f.changed
		f.mu.Unlock()

		if len(fresh) > 0 {
			writeJSON(w, http.StatusOK, backend.LongPollResponse{Notifications: fresh})
			return
		}

		select {
		case <-changed:
		case <-deadline.C:
			writeJSON(w, http.StatusOK, backend.LongPollResponse{Notifications: []model.Notification{}})
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
