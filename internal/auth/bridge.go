package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/carrylink/internal/backend"
	"github.com/nhle/carrylink/internal/model"
)

// ErrNoSession is returned by Credential when no provider access token
// has been observed.
var ErrNoSession = errors.New("no identity-provider session")

// ErrSessionChanged is returned by Credential when the session ended
// while the caller was waiting.
var ErrSessionChanged = errors.New("session changed during token exchange")

// ErrExchangeFailed wraps the last exchange error reported to callers
// while the bridge waits to retry.
var ErrExchangeFailed = errors.New("token exchange failed")

// State is a Bridge lifecycle state.
type State int

const (
	StateIdle State = iota
	StateExchanging
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExchanging:
		return "exchanging"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the bridge.
type Status struct {
	State    State
	Provider model.Provider

	// Credential is the backend bearer token. It is set only in StateReady.
	Credential string

	// Err is the last exchange error. It is set only in StateFailed.
	Err string

	// Attempt counts exchange attempts in the current session.
	Attempt int
}

// Exchanger trades an identity-provider access token for a backend
// credential. backend.Client satisfies it.
type Exchanger interface {
	Exchange(ctx context.Context, accessToken string, provider model.Provider) (string, error)
}

// Config holds the settings for a Bridge.
type Config struct {
	Exchanger Exchanger

	// RetryDelay is the wait between a failed exchange and its retry.
	// Zero means 3 seconds.
	RetryDelay time.Duration

	Logger logrus.FieldLogger
}

// Bridge converts an identity-provider session into exactly one backend
// credential. Concurrent callers share a single in-flight exchange, and a
// failed exchange is retried after a fixed delay until the session ends.
type Bridge struct {
	exchanger  Exchanger
	retryDelay time.Duration
	logger     logrus.FieldLogger
	group      singleflight.Group

	mu          gosync.Mutex
	gen         uint64
	accessToken string
	ctx         context.Context
	cancel      context.CancelFunc
	retry       *time.Timer
	status      Status

	subsMu  gosync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// NewBridge creates an idle Bridge.
func NewBridge(cfg Config) *Bridge {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bridge{
		exchanger:  cfg.Exchanger,
		retryDelay: delay,
		logger:     logger,
		status:     Status{State: StateIdle},
		subs:       make(map[int]chan struct{}),
	}
}

// Observe feeds the current provider session into the bridge. An empty
// accessToken ends the session and discards any credential. A new token
// starts a new session and an exchange. Observing the same token again
// re-triggers a failed exchange and is otherwise a no-op.
func (b *Bridge) Observe(accessToken string, provider model.Provider) {
	if provider == "" {
		provider = model.DefaultProvider
	}

	b.mu.Lock()
	changed := b.observeLocked(accessToken, provider)
	b.mu.Unlock()

	if changed {
		b.notify()
	}
}

func (b *Bridge) observeLocked(accessToken string, provider model.Provider) bool {
	if accessToken == "" {
		if b.accessToken == "" && b.status.State == StateIdle {
			return false
		}
		b.endSessionLocked()
		b.logger.Info("identity session ended, backend credential discarded")
		return true
	}

	if accessToken == b.accessToken && provider == b.status.Provider {
		if b.status.State != StateFailed {
			return false
		}
		b.stopRetryLocked()
		b.startLocked()
		return true
	}

	b.endSessionLocked()
	b.accessToken = accessToken
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.status = Status{State: StateIdle, Provider: provider}
	b.startLocked()
	return true
}

// Close ends the session and stops any pending retry.
func (b *Bridge) Close() {
	b.Observe("", "")
}

// Status returns a snapshot of the bridge.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Credential returns the backend credential for the current session,
// waiting for an in-flight exchange if there is one. It never starts a
// second exchange while one is running.
func (b *Bridge) Credential(ctx context.Context) (string, error) {
	b.mu.Lock()
	gen := b.gen
	switch b.status.State {
	case StateReady:
		cred := b.status.Credential
		b.mu.Unlock()
		return cred, nil
	case StateFailed:
		msg := b.status.Err
		b.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrExchangeFailed, msg)
	case StateExchanging:
		// Joining under the lock guarantees the flight has not finished yet.
		ch := b.group.DoChan(flightKey(gen, b.status.Attempt), b.flight(gen))
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-ch:
			if b.generation() != gen {
				return "", ErrSessionChanged
			}
			if res.Err != nil {
				return "", res.Err
			}
			return res.Val.(string), nil
		}
	default:
		b.mu.Unlock()
		return "", ErrNoSession
	}
}

// Subscribe returns a channel that receives a signal after every status
// change and a function that cancels the subscription.
func (b *Bridge) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.subsMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.subsMu.Unlock()

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs, id)
			b.subsMu.Unlock()
		})
	}
}

func (b *Bridge) notify() {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *Bridge) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// startLocked moves the bridge to StateExchanging and launches the
// exchange for the current generation.
func (b *Bridge) startLocked() {
	b.status.State = StateExchanging
	b.status.Err = ""
	b.status.Attempt++

	b.logger.WithFields(logrus.Fields{
		"provider": b.status.Provider,
		"attempt":  b.status.Attempt,
	}).Debug("exchanging provider token")

	b.group.DoChan(flightKey(b.gen, b.status.Attempt), b.flight(b.gen))
}

// flight returns the exchange function for generation gen. It captures
// the session inputs so a later session cannot leak into it.
func (b *Bridge) flight(gen uint64) func() (interface{}, error) {
	ctx := b.ctx
	token := b.accessToken
	provider := b.status.Provider

	return func() (interface{}, error) {
		cred, err := b.exchanger.Exchange(ctx, token, provider)
		b.finish(gen, cred, err)
		return cred, err
	}
}

func (b *Bridge) finish(gen uint64, cred string, err error) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		b.logger.Debug("discarding token exchange result from an ended session")
		return
	}

	log := b.logger.WithFields(logrus.Fields{
		"provider": b.status.Provider,
		"attempt":  b.status.Attempt,
	})

	if err != nil {
		b.status.State = StateFailed
		b.status.Err = err.Error()
		b.status.Credential = ""
		b.retry = time.AfterFunc(b.retryDelay, func() { b.retryExchange(gen) })
		log = log.WithError(err).WithField("retry_in", b.retryDelay)
		if backend.IsAuthError(err) {
			log.Warn("backend rejected the provider token")
		} else {
			log.Warn("token exchange failed")
		}
	} else {
		b.status.State = StateReady
		b.status.Credential = cred
		log.Info("backend credential ready")
	}
	b.mu.Unlock()

	b.notify()
}

func (b *Bridge) retryExchange(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.status.State != StateFailed {
		b.mu.Unlock()
		return
	}
	b.retry = nil
	b.startLocked()
	b.mu.Unlock()

	b.notify()
}

// endSessionLocked invalidates the current generation, aborts any
// in-flight exchange and returns the bridge to StateIdle.
func (b *Bridge) endSessionLocked() {
	b.gen++
	b.stopRetryLocked()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.ctx = nil
	b.accessToken = ""
	b.status = Status{State: StateIdle}
}

func (b *Bridge) stopRetryLocked() {
	if b.retry != nil {
		b.retry.Stop()
		b.retry = nil
	}
}

// flightKey names one exchange attempt. Attempts never share a key, so a
// retry cannot join a flight that has already reported its result.
func flightKey(gen uint64, attempt int) string {
	return strconv.FormatUint(gen, 10) + "/" + strconv.Itoa(attempt)
}
