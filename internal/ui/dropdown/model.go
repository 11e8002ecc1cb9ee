package dropdown

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carrylink/internal/keys"
	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
	"github.com/nhle/carrylink/internal/theme"
	"github.com/nhle/carrylink/internal/ui"
	"github.com/nhle/carrylink/internal/ui/notiflist"
)

// DefaultLimit is the number of entries shown when none is configured.
const DefaultLimit = 5

// Badge renders the bell and unread counter for the header. It is empty
// when there is nothing unread.
func Badge(unread int) string {
	if unread <= 0 {
		return ""
	}
	label := fmt.Sprintf("%d", unread)
	if unread > 99 {
		label = "99+"
	}
	return theme.BadgeStyle.Render("🔔 " + label)
}

// Model is the home screen: the most recent notifications followed by a
// "view all" row.
type Model struct {
	store   store.Store
	keys    *keys.KeyMap
	limit   int
	cursor  int
	entries []model.Notification
	unread  int
	width   int
	height  int
}

// New creates a dropdown showing at most limit entries.
func New(s store.Store, k *keys.KeyMap, limit, width, height int) Model {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return Model{
		store:  s,
		keys:   k,
		limit:  limit,
		width:  width,
		height: height,
	}
}

// Refresh reloads entries and the unread count from the store.
func (m *Model) Refresh() {
	m.entries = notiflist.Dedupe(m.store.Latest(m.limit))
	m.unread = m.store.UnreadCount()
	if m.cursor > len(m.entries) {
		m.cursor = len(m.entries)
	}
}

// Update handles messages for the dropdown.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.entries) {
			m.cursor++
		}

	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(keyMsg, m.keys.ViewAll):
		return m, viewAll

	case key.Matches(keyMsg, m.keys.Select):
		if m.onViewAll() {
			return m, viewAll
		}
		n := m.entries[m.cursor]
		m.store.MarkAsRead(n.ID)
		m.Refresh()
		if n.HasLink() {
			n.Read = true
			return m, func() tea.Msg { return ui.NavigateMsg{Notification: n} }
		}

	case key.Matches(keyMsg, m.keys.Dismiss):
		if m.onViewAll() {
			return m, nil
		}
		m.store.Remove(m.entries[m.cursor].ID)
		m.Refresh()

	case key.Matches(keyMsg, m.keys.ReadAll):
		m.store.MarkAllAsRead()
		m.Refresh()
	}

	return m, nil
}

func viewAll() tea.Msg { return ui.ViewAllMsg{} }

// onViewAll reports whether the cursor is on the trailing "view all" row.
func (m Model) onViewAll() bool {
	return m.cursor >= len(m.entries)
}

// View renders the dropdown panel.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := "Notifications"
	if m.unread > 0 {
		title = fmt.Sprintf("Notifications (%d unread)", m.unread)
	}

	rows := []string{titleStyle.Render(title)}
	if len(m.entries) == 0 {
		rows = append(rows, theme.DimmedStyle.Italic(true).Render("  You're all caught up."))
	}
	for i, n := range m.entries {
		rows = append(rows, notiflist.RenderRow(n, i == m.cursor, m.width-4))
	}

	all := "View all notifications"
	if m.onViewAll() {
		rows = append(rows, theme.SelectedItemStyle.Render(all))
	} else {
		rows = append(rows, theme.ListItemStyle.Foreground(theme.ColorBlue).Render(all))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// SetSize updates the dropdown dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Entries returns the rows currently shown, newest first.
func (m Model) Entries() []model.Notification {
	return m.entries
}

// Unread returns the unread count shown by the badge.
func (m Model) Unread() int {
	return m.unread
}
