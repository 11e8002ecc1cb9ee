package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nhle/carrylink/internal/model"
)

// Config holds the settings for a backend Client.
type Config struct {
	// BaseURL is the root of the REST API (e.g., http://localhost:8000/api).
	BaseURL string

	// Timeout bounds ordinary requests. Zero means 30 seconds.
	Timeout time.Duration

	// LongPollTimeout bounds a single long-poll request. Zero means 60
	// seconds. It must exceed the time the server holds a request.
	LongPollTimeout time.Duration

	// Logger receives request diagnostics. Nil means logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Client is a thin HTTP client for the marketplace backend. It handles
// JSON marshaling, optional bearer authentication and automatic retry
// with exponential backoff on HTTP 429.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	longPollClient *http.Client
	maxRetries     int
	logger         logrus.FieldLogger
}

// NewClient creates a new backend client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("backend: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("backend: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	longPollTimeout := cfg.LongPollTimeout
	if longPollTimeout <= 0 {
		longPollTimeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		longPollClient: &http.Client{Timeout: longPollTimeout},
		maxRetries:     3,
		logger:         logger,
	}, nil
}

// Exchange trades an identity-provider access token for a backend
// credential.
func (c *Client) Exchange(
	ctx context.Context,
	accessToken string,
	provider model.Provider,
) (string, error) {
	var resp ExchangeResponse
	err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/exchange", "",
		ExchangeRequest{AccessToken: accessToken, Provider: provider}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", ErrMissingCredential
	}
	return resp.AccessToken, nil
}

// FetchNotifications returns every current notification for identityKey.
func (c *Client) FetchNotifications(
	ctx context.Context,
	identityKey string,
) ([]model.Notification, error) {
	path := "/notifications?" + url.Values{"user_email": {identityKey}}.Encode()

	var list []model.Notification
	if err := c.do(ctx, c.httpClient, http.MethodGet, path, "", nil, &list); err != nil {
		return nil, err
	}
	return withIDs(list), nil
}

// LongPoll asks for notifications created after since. The server may
// hold the request open until something arrives or its own timeout
// elapses, in which case the result is empty.
func (c *Client) LongPoll(
	ctx context.Context,
	identityKey string,
	since string,
) ([]model.Notification, error) {
	path := "/notifications/longpoll?" + url.Values{
		"user_email": {identityKey},
		"last_time":  {since},
	}.Encode()

	var resp LongPollResponse
	if err := c.do(ctx, c.longPollClient, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return withIDs(resp.Notifications), nil
}

// Get performs an authenticated HTTP GET and unmarshals the JSON response.
// CRUD call sites pass the credential obtained from the token bridge.
func (c *Client) Get(
	ctx context.Context,
	path string,
	credential string,
	result interface{},
) error {
	return c.do(ctx, c.httpClient, http.MethodGet, path, credential, nil, result)
}

// Post performs an authenticated HTTP POST with a JSON body and
// unmarshals the JSON response.
func (c *Client) Post(
	ctx context.Context,
	path string,
	credential string,
	body interface{},
	result interface{},
) error {
	return c.do(ctx, c.httpClient, http.MethodPost, path, credential, body, result)
}

// withIDs drops entries that cannot be deduplicated because they carry
// no id.
func withIDs(list []model.Notification) []model.Notification {
	out := list[:0]
	for _, n := range list {
		if n.ID != "" {
			out = append(out, n)
		}
	}
	return out
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	httpClient *http.Client,
	method string,
	path string,
	credential string,
	body interface{},
	result interface{},
) error {
	endpoint := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	requestID := uuid.New().String()
	log := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       stripQuery(path),
		"request_id": requestID,
	})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if credential != "" {
			req.Header.Set("Authorization", "Bearer "+credential)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, stripQuery(path), err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = &APIError{StatusCode: resp.StatusCode, Method: method, Path: stripQuery(path)}
			log.WithField("wait", waitDuration).Warn("rate limited by backend")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: stripQuery(path)}
			var envelope ErrorResponse
			if json.Unmarshal(respBody, &envelope) == nil && envelope.Detail != "" {
				apiErr.Detail = envelope.Detail
			} else {
				apiErr.Detail = strings.TrimSpace(string(respBody))
			}
			return apiErr
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf(
				"unmarshaling response from %s %s: %w",
				method, stripQuery(path), err,
			)
		}

		return nil
	}

	return fmt.Errorf(
		"max retries (%d) exceeded: %w", c.maxRetries, lastErr,
	)
}

// stripQuery removes the query string so identity keys stay out of
// error messages and logs.
func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
