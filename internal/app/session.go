package app

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/carrylink/internal/credential"
	"github.com/nhle/carrylink/internal/model"
)

// sessionRestoredMsg carries the session remembered from a previous run.
type sessionRestoredMsg struct {
	session model.Session
	found   bool
	err     error
}

// restoreSession returns a command that loads the remembered provider
// session from the vault.
func (m Model) restoreSession() tea.Cmd {
	vault := m.vault
	logger := m.logger

	return func() tea.Msg {
		if vault == nil {
			return sessionRestoredMsg{}
		}

		s, err := vault.LoadSession()
		if errors.Is(err, credential.ErrNotFound) {
			return sessionRestoredMsg{}
		}
		if err != nil {
			logger.WithError(err).Warn("failed to load stored session")
			return sessionRestoredMsg{err: err}
		}
		if err := s.Validate(); err != nil {
			logger.WithError(err).Warn("stored session is unusable")
			return sessionRestoredMsg{session: s, err: err}
		}
		return sessionRestoredMsg{session: s, found: true}
	}
}

// startSession hands session to the coordinator and, on success, switches
// to the home view and remembers the session.
func (m *Model) startSession(session model.Session) tea.Cmd {
	log := m.logger.WithField("provider", session.Provider)

	if err := m.sessions.Start(session); err != nil {
		log.WithError(err).Warn("rejected session")
		return m.showLogin(&session, err)
	}

	m.session = &session
	m.syncing = true
	m.syncErr = nil
	m.pollErr = nil
	m.toast.Reset()
	m.currentView = ViewHome
	m.loginView.SetError(nil)

	if m.vault != nil {
		if err := m.vault.SaveSession(session); err != nil {
			log.WithError(err).Warn("failed to remember session")
		}
	}
	log.Info("signed in")
	return nil
}

// signOut ends the session and forgets it.
func (m *Model) signOut() tea.Cmd {
	prev := m.session
	m.sessions.Stop()
	m.session = nil
	m.syncing = false
	m.syncErr = nil
	m.pollErr = nil
	m.toast.Reset()

	if m.vault != nil {
		if err := m.vault.DeleteSession(); err != nil {
			m.logger.WithError(err).Warn("failed to delete stored session")
		}
	}
	m.logger.Info("signed out")
	return m.showLogin(prev, nil)
}

// refresh re-fetches the notification set. Toasts pause until it
// completes so the refetched backlog is not announced.
func (m *Model) refresh() {
	if m.session == nil {
		return
	}
	m.toast.Disarm()
	m.syncing = true
	m.sessions.Refresh()
	m.logger.Debug("refresh requested")
}

// showLogin switches to the sign-in form, prefilled from prev.
func (m *Model) showLogin(prev *model.Session, err error) tea.Cmd {
	m.currentView = ViewLogin
	cmd := m.loginView.Start(prev)
	m.loginView.SetError(err)
	return cmd
}

// quit stops the session loops and exits. The remembered session is kept.
func (m *Model) quit() tea.Cmd {
	for _, cancel := range m.unsubscribe {
		cancel()
	}
	if m.sessions != nil {
		m.sessions.Stop()
	}
	m.logger.WithFields(logrus.Fields{"signed_in": m.session != nil}).Debug("quitting")
	return tea.Quit
}
