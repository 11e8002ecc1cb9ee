package app

import (
	"github.com/nhle/carrylink/internal/auth"
	"github.com/nhle/carrylink/internal/theme"
)

// maxStatusErr bounds the auth error shown in the header.
const maxStatusErr = 40

// title returns the header title with the signed-in user's name.
func (m Model) title() string {
	if m.session == nil {
		return "CarryLink"
	}
	id, err := m.session.Identity()
	if err != nil || id.DisplayName() == "" {
		return "CarryLink"
	}
	return "CarryLink · " + id.DisplayName()
}

// connectionStatus returns the styled header indicator for the backend
// credential and the notification stream.
func (m Model) connectionStatus() string {
	if m.session == nil {
		return theme.ConnectionStyle("").Render("signed out")
	}

	switch m.auth.State {
	case auth.StateFailed:
		msg := m.auth.Err
		if r := []rune(msg); len(r) > maxStatusErr {
			msg = string(r[:maxStatusErr-1]) + "…"
		}
		return theme.ConnectionStyle("failed").Render("⚠ auth retrying: " + msg)
	case auth.StateReady:
		switch {
		case m.pollErr != nil:
			return theme.ConnectionStyle("failed").Render("⚠ reconnecting")
		case m.syncing:
			return theme.ConnectionStyle("connecting").Render("syncing…")
		case m.syncErr != nil:
			return theme.ConnectionStyle("failed").Render("⚠ sync failed")
		default:
			return theme.ConnectionStyle("online").Render("● online")
		}
	default:
		return theme.ConnectionStyle("connecting").Render("connecting…")
	}
}
