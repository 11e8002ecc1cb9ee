package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carrylink/internal/theme"
)

// Layout manages the terminal layout dimensions: a header, the content
// area, a one-line toast slot and the status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	ToastHeight     int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// The header, toast slot and status bar are one line each.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		ToastHeight:     1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.ToastHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the top bar: title and badge on the left, the
// connection status on the right. badge and status arrive pre-styled.
func (l Layout) RenderHeader(title, badge, status string) string {
	left := theme.HeaderStyle.Render(title)
	if badge != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, badge)
	}
	return l.fill(left, status, theme.HeaderStyle)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.fill(theme.StatusBarStyle.Render(hints), "", theme.StatusBarStyle)
}

// RenderToast renders the toast slot, padded to the full width so the
// frame height stays constant whether or not a toast is showing.
func (l Layout) RenderToast(toast string) string {
	return lipgloss.NewStyle().Width(l.Width).MaxHeight(l.ToastHeight).Render(toast)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, toast slot and status bar.
func (l Layout) RenderWithFrame(header, content, toast, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		l.RenderToast(toast),
		statusBar,
	)
}

// fill joins left and right with a gap in style's background so the bar
// spans the full width.
func (l Layout) fill(left, right string, style lipgloss.Style) string {
	gap := l.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}
