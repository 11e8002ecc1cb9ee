package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
)

// refreshTimeout bounds a user-triggered re-sync.
const refreshTimeout = time.Minute

// ErrNoIdentityKey is returned by Start when the session identity cannot
// address any notifications.
var ErrNoIdentityKey = errors.New("session identity has no identity key")

// Backend is the part of the backend client the notification path uses.
type Backend interface {
	Fetcher
	LongPollSource
}

// TokenObserver receives the provider session so it can derive the
// backend credential. auth.Bridge satisfies it.
type TokenObserver interface {
	Observe(accessToken string, provider model.Provider)
}

// SyncCompleteMsg is a tea.Msg sent when Initial Sync or a refresh
// finishes, whether or not it succeeded.
type SyncCompleteMsg struct {
	IdentityKey string
	Count       int

	// IDs lists the entries the sync delivered. It is empty on failure.
	IDs []string
	Err error
}

// PollResultMsg is a tea.Msg sent after each long-poll iteration.
type PollResultMsg struct {
	PollResult
}

// SessionEndedMsg is a tea.Msg sent when a session is torn down.
type SessionEndedMsg struct{}

// CoordinatorConfig holds the collaborators of a Coordinator.
type CoordinatorConfig struct {
	Backend Backend
	Store   store.Store
	Tokens  TokenObserver
	Backoff Backoff
	Logger  logrus.FieldLogger
}

// Coordinator owns the notification session lifecycle: it hands the
// provider token to the bridge, runs Initial Sync, then the long-poll
// loop, and tears everything down when the session ends.
type Coordinator struct {
	backend Backend
	store   store.Store
	tokens  TokenObserver
	backoff Backoff
	logger  logrus.FieldLogger
	cursor  *Cursor

	mu          gosync.Mutex
	gen         uint64
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	identityKey string
	identity    model.Identity

	eventCh chan tea.Msg
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff
	}
	return &Coordinator{
		backend: cfg.Backend,
		store:   cfg.Store,
		tokens:  cfg.Tokens,
		backoff: cfg.Backoff,
		logger:  logger,
		cursor:  NewCursor(),
		eventCh: make(chan tea.Msg, 16),
	}
}

// Start establishes a session, replacing any current one. The store is
// cleared and the cursor reset before Initial Sync begins, and the
// long-poll loop starts only once Initial Sync has finished.
func (c *Coordinator) Start(session model.Session) error {
	identity, err := session.Identity()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	key := model.IdentityKey(identity)
	if key == "" {
		return ErrNoIdentityKey
	}

	c.mu.Lock()
	c.teardownLocked()

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	c.done = make(chan struct{})
	c.identityKey = key
	c.identity = identity
	done := c.done
	c.mu.Unlock()

	if c.tokens != nil {
		c.tokens.Observe(session.AccessToken, identity.Provider())
	}

	c.logger.WithFields(logrus.Fields{
		"identity": key,
		"provider": identity.Provider(),
	}).Info("notification session started")

	go c.run(ctx, gen, key, done)
	return nil
}

// Stop ends the current session. The long-poll loop stops, its in-flight
// request is aborted, the store is cleared and the cursor reset. Any
// response that still arrives is discarded.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	active := c.cancel != nil
	c.teardownLocked()
	c.mu.Unlock()

	if !active {
		return
	}
	if c.tokens != nil {
		c.tokens.Observe("", "")
	}
	c.logger.Info("notification session ended")
	c.sendEnded()
}

// Wait blocks until the current session's goroutine has exited or ctx is
// done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh fetches the notification set again for the current session
// alongside the running long-poll loop. Read flags and the cursor are kept.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	key := c.identityKey
	sessionCtx := c.ctx
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(sessionCtx, refreshTimeout)
		defer cancel()

		ids, err := c.initialSync().Resync(ctx, key, c.guard(gen))
		if errors.Is(err, context.Canceled) {
			return
		}
		c.deliver(sessionCtx, SyncCompleteMsg{IdentityKey: key, Count: len(ids), IDs: ids, Err: err})
	}()
}

// Identity returns the identity of the current session.
func (c *Coordinator) Identity() (model.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.identity != nil
}

// Cursor returns the current long-poll watermark.
func (c *Coordinator) Cursor() string {
	return c.cursor.Value()
}

// WaitForEvent returns a tea.Cmd that waits for the next session event.
// It should be re-issued after every event to keep listening.
func (c *Coordinator) WaitForEvent() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-c.eventCh
		if !ok {
			return nil
		}
		return msg
	}
}

func (c *Coordinator) run(ctx context.Context, gen uint64, key string, done chan struct{}) {
	defer close(done)

	guard := c.guard(gen)

	ids, err := c.initialSync().Run(ctx, key, guard)
	if ctx.Err() != nil {
		return
	}
	// Sync is complete even on failure so that polling is never blocked.
	if !c.deliver(ctx, SyncCompleteMsg{IdentityKey: key, Count: len(ids), IDs: ids, Err: err}) {
		return
	}

	poller := NewLongPoller(c.backend, c.store, c.cursor, c.backoff, c.logger)
	poller.OnResult(func(r PollResult) {
		if c.current(gen) {
			c.send(PollResultMsg{PollResult: r})
		}
	})
	poller.Run(ctx, key, guard)
}

func (c *Coordinator) initialSync() *InitialSync {
	return NewInitialSync(c.backend, c.store, c.cursor, c.logger)
}

// guard returns a Guard bound to session generation gen. apply runs under
// the coordinator lock, so teardown cannot interleave with it.
func (c *Coordinator) guard(gen uint64) Guard {
	return func(apply func()) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.cancel == nil {
			return false
		}
		apply()
		return true
	}
}

func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.cancel != nil
}

// teardownLocked invalidates the current generation, cancels its
// goroutine and empties the store and cursor.
func (c *Coordinator) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.ctx = nil
	c.gen++
	c.identityKey = ""
	c.identity = nil
	c.store.Clear()
	c.cursor.Reset()
}

// deliver queues msg, waiting for room until ctx is done. It reports
// whether msg was queued.
func (c *Coordinator) deliver(ctx context.Context, msg tea.Msg) bool {
	select {
	case c.eventCh <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendEnded queues SessionEndedMsg without blocking the caller. When the
// channel is full the oldest events are evicted; they belong to the
// session that just ended.
func (c *Coordinator) sendEnded() {
	for {
		select {
		case c.eventCh <- SessionEndedMsg{}:
			return
		default:
		}
		select {
		case <-c.eventCh:
		default:
		}
	}
}

// send delivers a poll result without blocking the session goroutine.
// Results are dropped when the channel is full.
func (c *Coordinator) send(msg tea.Msg) {
	select {
	case c.eventCh <- msg:
	default:
		c.logger.WithField("event", fmt.Sprintf("%T", msg)).Debug("event channel full, dropping event")
	}
}
