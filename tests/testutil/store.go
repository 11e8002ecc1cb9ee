package testutil

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
)

// NewTestStore creates an empty MemoryStore. It automatically clears the
// store when the test completes.
func NewTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()

	s := store.NewMemoryStore()
	t.Cleanup(s.Clear)
	return s
}

// NewTestLogger returns a logger that discards output and a hook that
// records every entry for assertions.
func NewTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// Notification builds an unread notification with a message derived from
// its id.
func Notification(id, createdAt string) model.Notification {
	return model.Notification{
		ID:        id,
		Message:   "notification " + id,
		CreatedAt: createdAt,
	}
}
