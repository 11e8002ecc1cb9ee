package sync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
)

// Fetcher returns every current notification for an identity.
type Fetcher interface {
	FetchNotifications(ctx context.Context, identityKey string) ([]model.Notification, error)
}

// Guard runs apply only while the session that started the work is still
// current, and reports whether apply ran. Guards serialize apply with
// session teardown.
type Guard func(apply func()) bool

// Always is a Guard for work that is not tied to a session.
func Always(apply func()) bool {
	apply()
	return true
}

// InitialSync populates the store at the start of a session.
type InitialSync struct {
	fetcher Fetcher
	store   store.Store
	cursor  *Cursor
	logger  logrus.FieldLogger
}

// NewInitialSync creates an InitialSync writing into s and c.
func NewInitialSync(f Fetcher, s store.Store, c *Cursor, logger logrus.FieldLogger) *InitialSync {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &InitialSync{fetcher: f, store: s, cursor: c, logger: logger}
}

// Run fetches the full notification set for identityKey at the start of
// a session. On success the store is replaced wholesale and the cursor
// goes back to the epoch. On failure both are left untouched and the error
// is returned; callers treat the sync as complete either way. The ids of
// the synced entries are returned.
func (s *InitialSync) Run(ctx context.Context, identityKey string, guard Guard) ([]string, error) {
	return s.sync(ctx, identityKey, guard, func(list []model.Notification) {
		s.store.Set(list)
		s.cursor.Reset()
	})
}

// Resync fetches the notification set again during a running session. The
// result is merged so local read flags survive, and the cursor only moves
// forward.
func (s *InitialSync) Resync(ctx context.Context, identityKey string, guard Guard) ([]string, error) {
	return s.sync(ctx, identityKey, guard, func(list []model.Notification) {
		s.store.Merge(list)
		s.cursor.Advance(list)
	})
}

func (s *InitialSync) sync(ctx context.Context, identityKey string, guard Guard, apply func([]model.Notification)) ([]string, error) {
	log := s.logger.WithField("identity", identityKey)

	list, err := s.fetcher.FetchNotifications(ctx, identityKey)
	if err != nil {
		log.WithError(err).Warn("initial notification sync failed")
		return nil, fmt.Errorf("initial sync: %w", err)
	}

	count := 0
	applied := guard(func() {
		apply(list)
		count = s.store.Len()
	})
	if !applied {
		log.Debug("discarding initial sync for an ended session")
		return nil, context.Canceled
	}

	ids := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, n := range list {
		if !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
	}

	log.WithField("count", count).Info("initial notification sync complete")
	return ids, nil
}
