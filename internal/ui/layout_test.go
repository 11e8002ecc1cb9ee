package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestLayout_ContentHeight(t *testing.T) {
	assert.Equal(t, 21, NewLayout(80, 24).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 2).ContentHeight())
	assert.Equal(t, 80, NewLayout(80, 24).ContentWidth())
}

func TestLayout_HeaderSpansWidth(t *testing.T) {
	l := NewLayout(60, 20)
	header := l.RenderHeader("CarryLink", "3", "online")

	assert.Equal(t, 60, lipgloss.Width(header))
	assert.Contains(t, header, "CarryLink")
	assert.Contains(t, header, "online")
}

func TestLayout_FrameKeepsHeight(t *testing.T) {
	l := NewLayout(40, 12)

	withToast := l.RenderWithFrame("header", "body", "toast", "status")
	without := l.RenderWithFrame("header", "body", "", "status")

	assert.Equal(t, 12, lipgloss.Height(withToast))
	assert.Equal(t, lipgloss.Height(withToast), lipgloss.Height(without))
	assert.True(t, strings.HasPrefix(withToast, "header"))
}
