package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/carrylink/internal/auth"
	"github.com/nhle/carrylink/internal/keys"
	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
	appsync "github.com/nhle/carrylink/internal/sync"
	"github.com/nhle/carrylink/internal/ui"
	"github.com/nhle/carrylink/internal/ui/command"
	"github.com/nhle/carrylink/internal/ui/detail"
	"github.com/nhle/carrylink/internal/ui/dropdown"
	helpview "github.com/nhle/carrylink/internal/ui/help"
	"github.com/nhle/carrylink/internal/ui/login"
	"github.com/nhle/carrylink/internal/ui/notiflist"
	"github.com/nhle/carrylink/internal/ui/toast"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewHome
	ViewList
	ViewDetail
	ViewHelp
	ViewCommand
)

// Sessions drives the notification session lifecycle.
// sync.Coordinator satisfies it.
type Sessions interface {
	Start(session model.Session) error
	Stop()
	Refresh()
	WaitForEvent() tea.Cmd
}

// CredentialStatus reports the backend credential state. auth.Bridge
// satisfies it.
type CredentialStatus interface {
	Status() auth.Status
	Subscribe() (<-chan struct{}, func())
}

// SessionVault persists the identity-provider session between runs.
// credential.Vault satisfies it.
type SessionVault interface {
	LoadSession() (model.Session, error)
	SaveSession(s model.Session) error
	DeleteSession() error
}

// Options holds the collaborators of the root model.
type Options struct {
	Config   *model.AppConfig
	Store    store.Store
	Sessions Sessions
	Bridge   CredentialStatus

	// Vault may be nil, in which case sessions are not remembered.
	Vault  SessionVault
	Logger logrus.FieldLogger
}

// storeChangedMsg is sent after every Store mutation.
type storeChangedMsg struct{}

// bridgeChangedMsg is sent after every credential status change.
type bridgeChangedMsg struct{}

// Model is the root Bubble Tea model that owns the notification Store and
// routes between the delivery surfaces.
type Model struct {
	currentView  ViewState
	previousView ViewState
	detailReturn ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	logger       logrus.FieldLogger

	store    store.Store
	sessions Sessions
	bridge   CredentialStatus
	vault    SessionVault

	storeSignal  <-chan struct{}
	bridgeSignal <-chan struct{}
	unsubscribe  []func()

	loginView   login.Model
	home        dropdown.Model
	list        notiflist.Model
	detail      detail.Model
	helpView    helpview.Model
	commandView command.Model
	toast       toast.Model

	session *model.Session
	auth    auth.Status
	syncing bool
	syncErr error
	pollErr error
	notice  string
	ready   bool
}

// New creates a new root application model.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	k := keys.DefaultKeyMap()

	m := Model{
		currentView: ViewHome,
		keys:        k,
		logger:      logger,
		store:       opts.Store,
		sessions:    opts.Sessions,
		bridge:      opts.Bridge,
		vault:       opts.Vault,
		loginView:   login.New(80, 24),
		home:        dropdown.New(opts.Store, k, cfg.Display.DropdownLimit, 80, 24),
		list:        notiflist.New(opts.Store, k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		toast:       toast.New(opts.Store, cfg.Display.Toasts, cfg.ToastDuration()),
	}

	signal, cancel := opts.Store.Subscribe()
	m.storeSignal = signal
	m.unsubscribe = append(m.unsubscribe, cancel)

	if opts.Bridge != nil {
		signal, cancel := opts.Bridge.Subscribe()
		m.bridgeSignal = signal
		m.unsubscribe = append(m.unsubscribe, cancel)
		m.auth = opts.Bridge.Status()
	}

	return m
}

// Init restores the remembered session and starts listening for Store,
// credential and session events.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForSignal(m.storeSignal, storeChangedMsg{}),
		m.restoreSession(),
	}
	if m.bridgeSignal != nil {
		cmds = append(cmds, waitForSignal(m.bridgeSignal, bridgeChangedMsg{}))
	}
	if m.sessions != nil {
		cmds = append(cmds, m.sessions.WaitForEvent())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.loginView.SetSize(contentWidth, contentHeight)
		m.home.SetSize(contentWidth, contentHeight)
		m.list.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case sessionRestoredMsg:
		if msg.found {
			return m, m.startSession(msg.session)
		}
		return m, m.showLogin(nil, msg.err)

	case login.SubmitMsg:
		return m, m.startSession(msg.Session)

	case login.CancelMsg:
		return m, m.quit()

	case storeChangedMsg:
		m.home.Refresh()
		cmds := []tea.Cmd{
			m.list.Refresh(),
			m.toast.Observe(),
			waitForSignal(m.storeSignal, storeChangedMsg{}),
		}
		return m, tea.Batch(cmds...)

	case bridgeChangedMsg:
		m.auth = m.bridge.Status()
		return m, waitForSignal(m.bridgeSignal, bridgeChangedMsg{})

	case appsync.SyncCompleteMsg:
		m.syncing = false
		m.syncErr = msg.Err
		m.toast.Prime(msg.IDs)
		m.home.Refresh()
		return m, tea.Batch(m.list.Refresh(), m.toast.Observe(), m.sessions.WaitForEvent())

	case appsync.PollResultMsg:
		m.pollErr = msg.Err
		return m, m.sessions.WaitForEvent()

	case appsync.SessionEndedMsg:
		return m, m.sessions.WaitForEvent()

	case toast.ExpiredMsg:
		var cmd tea.Cmd
		m.toast, cmd = m.toast.Update(msg)
		return m, cmd

	case ui.NavigateMsg:
		m.detailReturn = m.currentView
		m.currentView = ViewDetail
		m.detail.SetNotification(msg.Notification)
		m.logger.WithField("link", msg.Notification.Link).Debug("opening notification link")
		return m, nil

	case ui.ViewAllMsg:
		m.currentView = ViewList
		return m, m.list.Refresh()

	case ui.BackMsg:
		switch m.currentView {
		case ViewDetail:
			m.currentView = m.detailReturn
		default:
			m.currentView = ViewHome
		}
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case tea.KeyMsg:
		m.notice = ""

		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}

		// The sign-in form owns every other key.
		if m.currentView == ViewLogin {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewHome || m.currentView == ViewList {
				return m, m.quit()
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewCommand {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp || m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}

		case key.Matches(msg, m.keys.Refresh):
			if m.currentView == ViewHome || m.currentView == ViewList {
				m.refresh()
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewHome:
		m.home, cmd = m.home.Update(msg)
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.title(), dropdown.Badge(m.home.Unread()), m.connectionStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, m.toast.View(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewHome:
		return m.home.View()
	case ViewList:
		return m.list.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.notice != "" {
		return m.notice
	}

	switch m.currentView {
	case ViewLogin:
		return "enter next | shift+tab back | ctrl+c quit"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "tab complete | enter execute | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	case ViewList:
		return "enter open | x dismiss | R read all | esc back | q quit"
	default:
		return "enter open | x dismiss | a all | R read all | r refresh | : command | ? help | q quit"
	}
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch command.Normalize(cmd) {
	case command.CmdNotifications, "all", "list":
		if m.session == nil {
			return nil
		}
		m.currentView = ViewList
		return m.list.Refresh()
	case command.CmdRefresh, "sync":
		m.refresh()
		return nil
	case command.CmdReadAll, "readall":
		m.store.MarkAllAsRead()
		return nil
	case command.CmdSignOut, "logout":
		return m.signOut()
	case command.CmdQuit, "q":
		return m.quit()
	default:
		m.notice = fmt.Sprintf("unknown command: %s", cmd)
		return nil
	}
}

// waitForSignal returns a tea.Cmd that blocks until ch fires and then
// delivers msg. It must be re-issued to keep listening.
func waitForSignal(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return msg
	}
}
