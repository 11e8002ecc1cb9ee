package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carrylink/internal/keys"
	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/theme"
	"github.com/nhle/carrylink/internal/ui"
	"github.com/nhle/carrylink/internal/ui/notiflist"
)

// Model shows the target of a notification's deep link. The terminal
// client has no page router, so navigating opens this view instead.
type Model struct {
	notification *model.Notification
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return ui.BackMsg{}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.notification == nil {
		return ""
	}
	n := m.notification

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	sections := []string{
		titleStyle.Render(n.Message),
		theme.ToastStyle(n.Type).Render(strings.ToUpper(string(n.Type.Normalize()))),
		"",
	}

	if n.SenderName != "" {
		sections = append(sections, fmt.Sprintf("%s     %s", metaStyle.Render("From:"), theme.SenderStyle.Render(n.SenderName)))
	}
	if n.CreatedAt != "" {
		sections = append(sections, fmt.Sprintf("%s  %s  %s",
			metaStyle.Render("Received:"),
			valStyle.Render(n.CreatedAt),
			metaStyle.Render("("+notiflist.RelativeTime(n.CreatedAt)+")"),
		))
	}
	if n.HasLink() {
		sections = append(sections, fmt.Sprintf("%s     %s", metaStyle.Render("Link:"), theme.LinkStyle.Render(n.Link)))
	}
	if n.SenderImage != "" {
		sections = append(sections, fmt.Sprintf("%s    %s", metaStyle.Render("Image:"), valStyle.Render(n.SenderImage)))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	sections = append(sections, "", sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0))))
	sections = append(sections, metaStyle.Render("id "+n.ID))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification updates the notification being displayed and
// re-renders the content.
func (m *Model) SetNotification(n model.Notification) {
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Notification returns the notification being displayed.
func (m Model) Notification() (model.Notification, bool) {
	if m.notification == nil {
		return model.Notification{}, false
	}
	return *m.notification, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
