package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carrylink/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	logger, _ := test.NewNullLogger()
	c, err := NewClient(Config{BaseURL: ts.URL + "/api/", Logger: logger})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("requires a base URL", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient(Config{})
		assert.Error(t, err)
	})

	t.Run("applies default timeouts", func(t *testing.T) {
		t.Parallel()

		c, err := NewClient(Config{BaseURL: "http://localhost:8000/api/"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8000/api", c.baseURL)
		assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
		assert.Equal(t, 60*time.Second, c.longPollClient.Timeout)
	})
}

func TestExchange(t *testing.T) {
	t.Parallel()

	t.Run("returns the backend credential", func(t *testing.T) {
		t.Parallel()

		var got ExchangeRequest
		var headers http.Header
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/auth/exchange", r.URL.Path)
			headers = r.Header
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"accessToken":"be-123"}`))
		})

		credential, err := c.Exchange(context.Background(), "abc", model.ProviderLine)
		require.NoError(t, err)
		assert.Equal(t, "be-123", credential)
		assert.Equal(t, ExchangeRequest{AccessToken: "abc", Provider: model.ProviderLine}, got)
		assert.Equal(t, "application/json", headers.Get("Content-Type"))
		assert.NotEmpty(t, headers.Get("X-Request-ID"))
		assert.Empty(t, headers.Get("Authorization"))
	})

	t.Run("missing credential field is an error", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"token":"nope"}`))
		})

		_, err := c.Exchange(context.Background(), "abc", model.ProviderGoogle)
		assert.ErrorIs(t, err, ErrMissingCredential)
	})

	t.Run("non-2xx surfaces an APIError with detail", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid Line token"}`))
		})

		_, err := c.Exchange(context.Background(), "abc", model.ProviderLine)
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "Invalid Line token", apiErr.Detail)
		assert.True(t, IsAuthError(err))
		assert.True(t, IsStatus(err, http.StatusUnauthorized))
	})

	t.Run("malformed JSON is an error", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		})

		_, err := c.Exchange(context.Background(), "abc", model.ProviderGoogle)
		assert.Error(t, err)
	})
}

func TestFetchNotifications(t *testing.T) {
	t.Parallel()

	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		query = r.URL.Query().Get("user_email")
		_, _ = w.Write([]byte(`[
			{"id": 7, "message": "offer accepted", "is_read": 0, "created_at": "2024-01-01T00:00:00"},
			{"id": "", "message": "no id"},
			{"id": "n2", "message": "x", "read": true, "createdAt": "2024-01-02T00:00:00Z", "sender_name": "Ploy"}
		]`))
	})

	list, err := c.FetchNotifications(context.Background(), "U123@line.me")
	require.NoError(t, err)
	assert.Equal(t, "U123@line.me", query)

	require.Len(t, list, 2)
	assert.Equal(t, "7", list[0].ID)
	assert.False(t, list[0].Read)
	assert.Equal(t, "2024-01-01T00:00:00", list[0].CreatedAt)
	assert.Equal(t, "n2", list[1].ID)
	assert.True(t, list[1].Read)
	assert.Equal(t, "Ploy", list[1].SenderName)
}

func TestLongPoll(t *testing.T) {
	t.Parallel()

	t.Run("carries identity and cursor", func(t *testing.T) {
		t.Parallel()

		var email, lastTime string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/notifications/longpoll", r.URL.Path)
			email = r.URL.Query().Get("user_email")
			lastTime = r.URL.Query().Get("last_time")
			_, _ = w.Write([]byte(`{"notifications":[{"id":"n1","message":"x","createdAt":"2024-01-01T00:00:00Z"}]}`))
		})

		list, err := c.LongPoll(context.Background(), "a+b@example.com", "2024-01-01T00:00:00+07:00")
		require.NoError(t, err)
		assert.Equal(t, "a+b@example.com", email)
		assert.Equal(t, "2024-01-01T00:00:00+07:00", lastTime)
		require.Len(t, list, 1)
		assert.Equal(t, "n1", list[0].ID)
	})

	t.Run("empty response", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"notifications":[]}`))
		})

		list, err := c.LongPoll(context.Background(), "a@example.com", Epoch)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("cancelled context aborts the held request", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := c.LongPoll(ctx, "a@example.com", Epoch)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGet_SendsBearerCredential(t *testing.T) {
	t.Parallel()

	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	})

	var out []map[string]any
	require.NoError(t, c.Get(context.Background(), "/requests", "be-123", &out))
	assert.Equal(t, "Bearer be-123", auth)
	assert.Len(t, out, 1)
}

func TestPost_NoContent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	var out map[string]any
	assert.NoError(t, c.Post(context.Background(), "/offers", "be-123", map[string]string{"a": "b"}, &out))
	assert.Nil(t, out)
}

func TestDo_RetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"accessToken":"be-1"}`))
	})

	credential, err := c.Exchange(context.Background(), "abc", model.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "be-1", credential)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAPIError_OmitsQueryString(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.FetchNotifications(context.Background(), "secret@example.com")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret@example.com")
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
}
