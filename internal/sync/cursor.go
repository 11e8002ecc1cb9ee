package sync

import (
	"strings"
	gosync "sync"
	"time"

	"github.com/nhle/carrylink/internal/backend"
	"github.com/nhle/carrylink/internal/model"
)

// timestampLayouts are tried in order when comparing watermarks. Layouts
// without a zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Cursor is the long-poll watermark: the greatest createdAt seen in the
// current session. It only moves forward until Reset.
type Cursor struct {
	mu    gosync.Mutex
	value string
}

// NewCursor returns a cursor at the epoch watermark.
func NewCursor() *Cursor {
	return &Cursor{value: backend.Epoch}
}

// Value returns the watermark verbatim.
func (c *Cursor) Value() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Reset moves the watermark back to the epoch.
func (c *Cursor) Reset() {
	c.mu.Lock()
	c.value = backend.Epoch
	c.mu.Unlock()
}

// Advance sets the watermark to the latest createdAt in batch when that
// is later than the current value. It reports whether the value moved.
func (c *Cursor) Advance(batch []model.Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	moved := false
	for _, n := range batch {
		if n.CreatedAt == "" {
			continue
		}
		if CompareTimestamps(n.CreatedAt, c.value) > 0 {
			c.value = n.CreatedAt
			moved = true
		}
	}
	return moved
}

// CompareTimestamps orders two ISO-8601 timestamps, returning -1, 0 or +1.
// Values are compared as instants when both parse and as strings
// otherwise.
func CompareTimestamps(a, b string) int {
	ta, okA := parseTimestamp(a)
	tb, okB := parseTimestamp(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
