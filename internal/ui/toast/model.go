package toast

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
	"github.com/nhle/carrylink/internal/theme"
)

// DefaultDuration is how long a toast stays visible when none is
// configured.
const DefaultDuration = 4 * time.Second

// maxQueue bounds the number of toasts waiting behind the visible one.
const maxQueue = 8

// Toast is one on-screen message.
type Toast struct {
	ID             string
	NotificationID string
	Message        string
	Type           model.ToastType
}

// ExpiredMsg is sent when the toast with ID has been visible long enough.
type ExpiredMsg struct {
	ID string
}

// Model shows the most recently added unread notification as an
// ephemeral line and marks it read as soon as it is shown.
type Model struct {
	store    store.Store
	enabled  bool
	duration time.Duration

	// primed is false until the current backlog has been recorded.
	primed  bool
	known   map[string]struct{}
	queue   []Toast
	current *Toast
}

// New creates a toast model. A disabled model never shows anything and
// never marks entries read.
func New(s store.Store, enabled bool, duration time.Duration) Model {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return Model{
		store:    s,
		enabled:  enabled,
		duration: duration,
		known:    make(map[string]struct{}),
	}
}

// Prime records the ids a sync delivered as already seen, so a freshly
// synced backlog is counted by the badge without a toast burst. Entries
// that reached the store by other means stay eligible. Observe does
// nothing until Prime has been called.
func (m *Model) Prime(synced []string) {
	for _, id := range synced {
		m.known[id] = struct{}{}
	}
	m.primed = true
}

// Disarm suspends toasting until the next Prime, e.g. while a re-sync
// replaces the store contents.
func (m *Model) Disarm() {
	m.primed = false
}

// Reset forgets every seen id, drops visible and queued toasts and
// disarms the model.
func (m *Model) Reset() {
	m.known = make(map[string]struct{})
	m.queue = nil
	m.current = nil
	m.primed = false
}

// Observe looks at the newest unread entry and toasts it if it has not
// been seen before. The entry is marked read immediately.
func (m *Model) Observe() tea.Cmd {
	if !m.enabled || !m.primed {
		return nil
	}

	n, ok := m.store.LatestUnread()
	if !ok {
		return nil
	}
	if _, seen := m.known[n.ID]; seen {
		return nil
	}
	m.known[n.ID] = struct{}{}
	m.store.MarkAsRead(n.ID)

	t := Toast{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Message:        n.Message,
		Type:           n.Type.Normalize(),
	}

	if m.current != nil {
		if len(m.queue) >= maxQueue {
			m.queue = m.queue[1:]
		}
		m.queue = append(m.queue, t)
		return nil
	}
	return m.show(t)
}

// Update handles toast expiry.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	expired, ok := msg.(ExpiredMsg)
	if !ok || m.current == nil || m.current.ID != expired.ID {
		return m, nil
	}

	m.current = nil
	if len(m.queue) == 0 {
		return m, nil
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	return m, m.show(next)
}

func (m *Model) show(t Toast) tea.Cmd {
	m.current = &t
	id := t.ID
	return tea.Tick(m.duration, func(time.Time) tea.Msg {
		return ExpiredMsg{ID: id}
	})
}

// Current returns the visible toast.
func (m Model) Current() (Toast, bool) {
	if m.current == nil {
		return Toast{}, false
	}
	return *m.current, true
}

// Pending returns the number of queued toasts.
func (m Model) Pending() int {
	return len(m.queue)
}

// View renders the visible toast, or nothing.
func (m Model) View() string {
	if m.current == nil {
		return ""
	}
	return theme.ToastStyle(m.current.Type).Render(icon(m.current.Type) + " " + m.current.Message)
}

func icon(t model.ToastType) string {
	switch t {
	case model.ToastSuccess:
		return "✓"
	case model.ToastError:
		return "✗"
	default:
		return "ℹ"
	}
}
