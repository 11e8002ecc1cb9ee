package notiflist

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carrylink/internal/keys"
	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
	"github.com/nhle/carrylink/internal/theme"
	"github.com/nhle/carrylink/internal/ui"
)

// Model is the full notification list page.
type Model struct {
	list   list.Model
	store  store.Store
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new notification list model.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, Delegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notification", "notifications")

	return Model{
		list:   l,
		store:  s,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Refresh reloads the rows from the store.
func (m *Model) Refresh() tea.Cmd {
	entries := Dedupe(m.store.Snapshot())
	items := make([]list.Item, len(entries))
	for i, n := range entries {
		items[i] = Item{Notification: n}
	}
	cmd := m.list.SetItems(items)
	m.list.Title = fmt.Sprintf("Notifications (%d unread)", m.store.UnreadCount())
	return cmd
}

// Update handles messages for the list page.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return ui.BackMsg{} }

		case key.Matches(msg, m.keys.Select):
			n, ok := m.selected()
			if !ok {
				return m, nil
			}
			m.store.MarkAsRead(n.ID)
			cmd := m.Refresh()
			if n.HasLink() {
				n.Read = true
				return m, tea.Batch(cmd, func() tea.Msg { return ui.NavigateMsg{Notification: n} })
			}
			return m, cmd

		case key.Matches(msg, m.keys.Dismiss):
			n, ok := m.selected()
			if !ok {
				return m, nil
			}
			m.store.Remove(n.ID)
			return m, m.Refresh()

		case key.Matches(msg, m.keys.ReadAll):
			m.store.MarkAllAsRead()
			return m, m.Refresh()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list page.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notifications yet.")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

// Len returns the number of rendered rows.
func (m Model) Len() int {
	return len(m.list.Items())
}

func (m Model) selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Dedupe keeps the first entry for each id. The store already holds
// unique ids; rendering dedupes again so a regression there never shows
// duplicate rows.
func Dedupe(list []model.Notification) []model.Notification {
	seen := make(map[string]struct{}, len(list))
	out := make([]model.Notification, 0, len(list))
	for _, n := range list {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}
