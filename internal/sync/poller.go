package sync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
)

// LongPollSource returns notifications created after since, possibly
// after holding the request open.
type LongPollSource interface {
	LongPoll(ctx context.Context, identityKey string, since string) ([]model.Notification, error)
}

// Backoff is a capped exponential delay applied after consecutive
// failures.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff starts at one second and caps at thirty.
var DefaultBackoff = Backoff{Initial: time.Second, Max: 30 * time.Second}

// Delay returns the wait after the given number of consecutive failures.
func (b Backoff) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	initial, max := b.Initial, b.Max
	if initial <= 0 {
		initial = DefaultBackoff.Initial
	}
	if max < initial {
		max = initial
	}

	delay := initial
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	return delay
}

// PollResult describes one completed long-poll iteration.
type PollResult struct {
	Added    int
	Returned int
	Cursor   string
	Err      error
	Retry    time.Duration
}

// LongPoller repeatedly asks the backend for notifications newer than the
// cursor and feeds unseen ones into the store.
type LongPoller struct {
	source  LongPollSource
	store   store.Store
	cursor  *Cursor
	backoff Backoff
	logger  logrus.FieldLogger

	// onResult, when set, is called after every iteration.
	onResult func(PollResult)
}

// NewLongPoller creates a LongPoller reading from src into s and c.
func NewLongPoller(src LongPollSource, s store.Store, c *Cursor, b Backoff, logger logrus.FieldLogger) *LongPoller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LongPoller{source: src, store: s, cursor: c, backoff: b, logger: logger}
}

// OnResult registers fn to receive a PollResult after every iteration.
func (p *LongPoller) OnResult(fn func(PollResult)) {
	p.onResult = fn
}

// Run polls until ctx is cancelled or guard reports the session has
// ended. Successful responses loop immediately. Failures back off.
func (p *LongPoller) Run(ctx context.Context, identityKey string, guard Guard) {
	log := p.logger.WithField("identity", identityKey)
	failures := 0

	for ctx.Err() == nil {
		since := p.cursor.Value()
		batch, err := p.source.LongPoll(ctx, identityKey, since)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			failures++
			wait := p.backoff.Delay(failures)
			log.WithError(err).WithFields(logrus.Fields{
				"cursor":   since,
				"failures": failures,
				"backoff":  wait,
			}).Warn("long poll failed")
			p.report(PollResult{Cursor: since, Err: err, Retry: wait})

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		failures = 0

		var result PollResult
		if !guard(func() { result = p.apply(batch) }) {
			log.Debug("discarding long poll response for an ended session")
			return
		}
		if len(batch) > 0 {
			log.WithFields(logrus.Fields{
				"returned": result.Returned,
				"added":    result.Added,
				"cursor":   result.Cursor,
			}).Debug("long poll delivered notifications")
		}
		p.report(result)
	}
}

// apply advances the cursor past batch and adds the entries the store
// does not hold yet.
func (p *LongPoller) apply(batch []model.Notification) PollResult {
	p.cursor.Advance(batch)

	added := 0
	for _, n := range batch {
		if p.store.Contains(n.ID) {
			continue
		}
		if p.store.Add(n) {
			added++
		}
	}
	return PollResult{Added: added, Returned: len(batch), Cursor: p.cursor.Value()}
}

func (p *LongPoller) report(r PollResult) {
	if p.onResult != nil {
		p.onResult(r)
	}
}
