package notiflist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/theme"
)

// Now is the clock used for relative timestamps.
var Now = time.Now

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Message }

// Title returns the notification text.
func (i Item) Title() string { return i.Notification.Message }

// Description returns a short attribution line.
func (i Item) Description() string {
	parts := []string{}
	if i.Notification.SenderName != "" {
		parts = append(parts, i.Notification.SenderName)
	}
	if rel := RelativeTime(i.Notification.CreatedAt); rel != "" {
		parts = append(parts, rel)
	}
	return strings.Join(parts, " | ")
}

// Delegate implements list.ItemDelegate for notification rows.
type Delegate struct{}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, RenderRow(it.Notification, index == m.Index(), m.Width()))
}

// RenderRow draws one notification line. The dropdown uses it too.
func RenderRow(n model.Notification, selected bool, width int) string {
	dot := " "
	if !n.Read {
		dot = theme.UnreadDotStyle.Render("●")
	}

	message := n.Message
	if n.HasLink() {
		message += " ↗"
	}

	meta := ""
	if n.SenderName != "" {
		meta += theme.SenderStyle.Render(" " + n.SenderName)
	}
	if rel := RelativeTime(n.CreatedAt); rel != "" {
		meta += lipgloss.NewStyle().Foreground(theme.ColorGray).Render("  " + rel)
	}

	// Leave room for the selection border and padding.
	if max := width - lipgloss.Width(meta) - 6; max > 0 && lipgloss.Width(message) > max {
		message = truncate(message, max)
	}

	line := fmt.Sprintf("%s %s%s", dot, message, meta)
	if n.Read {
		line = theme.DimmedStyle.Render(line)
	}

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// RelativeTime returns a human-friendly age for an ISO-8601 timestamp.
// Zone-less values are read as UTC. Unparseable values are returned as
// they are.
func RelativeTime(ts string) string {
	if ts == "" {
		return ""
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err = time.Parse(layout, ts); err == nil {
			break
		}
	}
	if err != nil {
		return ts
	}

	d := Now().Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("Jan 02, 2006")
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
