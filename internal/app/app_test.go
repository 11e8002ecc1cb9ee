package app

import (
	"errors"
	gosync "sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carrylink/internal/auth"
	"github.com/nhle/carrylink/internal/credential"
	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/store"
	appsync "github.com/nhle/carrylink/internal/sync"
	"github.com/nhle/carrylink/internal/ui"
	"github.com/nhle/carrylink/internal/ui/command"
	"github.com/nhle/carrylink/internal/ui/login"
)

type fakeSessions struct {
	mu        gosync.Mutex
	started   []model.Session
	stopped   int
	refreshed int
	startErr  error
}

func (f *fakeSessions) Start(s model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, s)
	return nil
}

func (f *fakeSessions) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeSessions) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
}

func (f *fakeSessions) WaitForEvent() tea.Cmd {
	return func() tea.Msg { return nil }
}

type fakeBridge struct {
	status auth.Status
	ch     chan struct{}
}

func (f *fakeBridge) Status() auth.Status { return f.status }

func (f *fakeBridge) Subscribe() (<-chan struct{}, func()) {
	return f.ch, func() {}
}

type fakeVault struct {
	session *model.Session
	saved   []model.Session
	deleted int
	loadErr error
}

func (v *fakeVault) LoadSession() (model.Session, error) {
	if v.loadErr != nil {
		return model.Session{}, v.loadErr
	}
	if v.session == nil {
		return model.Session{}, credential.ErrNotFound
	}
	return *v.session, nil
}

func (v *fakeVault) SaveSession(s model.Session) error {
	v.saved = append(v.saved, s)
	v.session = &s
	return nil
}

func (v *fakeVault) DeleteSession() error {
	v.deleted++
	v.session = nil
	return nil
}

type harness struct {
	store    *store.MemoryStore
	sessions *fakeSessions
	bridge   *fakeBridge
	vault    *fakeVault
}

var lineSession = model.Session{
	Provider:    model.ProviderLine,
	AccessToken: "line-token",
	ExternalID:  "U123",
	Name:        "Mika",
}

func newTestApp(t *testing.T) (Model, *harness) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := &harness{
		store:    store.NewMemoryStore(),
		sessions: &fakeSessions{},
		bridge:   &fakeBridge{status: auth.Status{State: auth.StateIdle}, ch: make(chan struct{}, 1)},
		vault:    &fakeVault{},
	}
	m := New(Options{
		Config:   model.DefaultConfig(),
		Store:    h.store,
		Sessions: h.sessions,
		Bridge:   h.bridge,
		Vault:    h.vault,
		Logger:   logger,
	})
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	return m, h
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func signedIn(t *testing.T) (Model, *harness) {
	t.Helper()
	m, h := newTestApp(t)
	m = update(t, m, login.SubmitMsg{Session: lineSession})
	require.Equal(t, ViewHome, m.currentView)
	return m, h
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_NotReadyBeforeWindowSize(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := New(Options{Store: store.NewMemoryStore(), Sessions: &fakeSessions{}, Logger: logger})
	assert.Equal(t, "Loading...", m.View())
}

func TestModel_RestoresStoredSession(t *testing.T) {
	m, h := newTestApp(t)
	s := lineSession
	h.vault.session = &s

	m = update(t, m, m.restoreSession()())

	assert.Equal(t, ViewHome, m.currentView)
	require.Len(t, h.sessions.started, 1)
	assert.Equal(t, lineSession, h.sessions.started[0])
	assert.Contains(t, m.View(), "Mika")
}

func TestModel_NoStoredSessionShowsLogin(t *testing.T) {
	m, h := newTestApp(t)

	m = update(t, m, m.restoreSession()())

	assert.Equal(t, ViewLogin, m.currentView)
	assert.Empty(t, h.sessions.started)
	assert.Contains(t, m.View(), "Sign in")
	assert.Contains(t, m.View(), "signed out")
}

func TestModel_UnreadableVaultShowsLoginWithError(t *testing.T) {
	m, h := newTestApp(t)
	h.vault.loadErr = errors.New("keyring locked")

	m = update(t, m, m.restoreSession()())

	assert.Equal(t, ViewLogin, m.currentView)
	assert.Contains(t, m.View(), "keyring locked")
}

func TestModel_SubmitStartsAndRemembersSession(t *testing.T) {
	m, h := signedIn(t)

	require.Len(t, h.sessions.started, 1)
	require.Len(t, h.vault.saved, 1)
	assert.Equal(t, "line-token", h.vault.saved[0].AccessToken)
	assert.True(t, m.syncing)
}

func TestModel_RejectedSessionStaysOnLogin(t *testing.T) {
	m, h := newTestApp(t)
	h.sessions.startErr = appsync.ErrNoIdentityKey

	m = update(t, m, login.SubmitMsg{Session: lineSession})

	assert.Equal(t, ViewLogin, m.currentView)
	assert.Empty(t, h.vault.saved)
	assert.Contains(t, m.View(), "no identity key")
}

func TestModel_SignOutCommand(t *testing.T) {
	m, h := signedIn(t)

	m = update(t, m, command.CommandMsg(command.CmdSignOut))

	assert.Equal(t, ViewLogin, m.currentView)
	assert.Equal(t, 1, h.sessions.stopped)
	assert.Equal(t, 1, h.vault.deleted)
	assert.Nil(t, m.session)
}

func TestModel_ReadAllCommand(t *testing.T) {
	m, h := signedIn(t)
	h.store.Set([]model.Notification{{ID: "1"}, {ID: "2"}})

	_ = update(t, m, command.CommandMsg(command.CmdReadAll))

	assert.Equal(t, 0, h.store.UnreadCount())
}

func TestModel_UnknownCommandShowsNotice(t *testing.T) {
	m, _ := signedIn(t)

	m = update(t, m, command.CommandMsg("teleport"))

	assert.Contains(t, m.View(), "unknown command: teleport")
}

func TestModel_StoreChangeUpdatesBadge(t *testing.T) {
	m, h := signedIn(t)
	h.store.Set([]model.Notification{
		{ID: "1", Message: "first"},
		{ID: "2", Message: "second"},
	})

	m = update(t, m, storeChangedMsg{})

	assert.Equal(t, 2, m.home.Unread())
	assert.Contains(t, m.View(), "🔔 2")
	assert.Contains(t, m.View(), "first")
}

func TestModel_ToastsOnlyAfterInitialSync(t *testing.T) {
	m, h := signedIn(t)
	h.store.Set([]model.Notification{{ID: "1", Message: "backlog"}})

	m = update(t, m, storeChangedMsg{})
	_, shown := m.toast.Current()
	assert.False(t, shown, "the synced backlog is not toasted")

	m = update(t, m, appsync.SyncCompleteMsg{IdentityKey: "U123@line.me", Count: 1, IDs: []string{"1"}})
	assert.False(t, m.syncing)

	h.store.Add(model.Notification{ID: "2", Message: "fresh offer", Type: model.ToastSuccess})
	m = update(t, m, storeChangedMsg{})

	cur, shown := m.toast.Current()
	require.True(t, shown)
	assert.Equal(t, "2", cur.NotificationID)
	got, _ := h.store.Get("2")
	assert.True(t, got.Read)
	assert.Contains(t, m.View(), "fresh offer")

	backlog, _ := h.store.Get("1")
	assert.False(t, backlog.Read)
}

func TestModel_ToastsArrivalsQueuedBehindSyncComplete(t *testing.T) {
	m, h := signedIn(t)
	h.store.Set([]model.Notification{{ID: "1", Message: "backlog"}})
	h.store.Add(model.Notification{ID: "2", Message: "live offer"})
	m = update(t, m, storeChangedMsg{})

	m = update(t, m, appsync.SyncCompleteMsg{Count: 1, IDs: []string{"1"}})

	cur, shown := m.toast.Current()
	require.True(t, shown)
	assert.Equal(t, "2", cur.NotificationID)
	backlog, _ := h.store.Get("1")
	assert.False(t, backlog.Read)
}

func TestModel_HeaderReflectsCredentialStatus(t *testing.T) {
	m, h := signedIn(t)
	assert.Contains(t, m.View(), "connecting…")

	h.bridge.status = auth.Status{State: auth.StateFailed, Err: "backend returned 500"}
	m = update(t, m, bridgeChangedMsg{})
	assert.Contains(t, m.View(), "auth retrying: backend returned 500")

	h.bridge.status = auth.Status{State: auth.StateReady, Credential: "be"}
	m = update(t, m, bridgeChangedMsg{})
	m = update(t, m, appsync.SyncCompleteMsg{})
	assert.Contains(t, m.View(), "online")

	m = update(t, m, appsync.PollResultMsg{PollResult: appsync.PollResult{Err: errors.New("timeout")}})
	assert.Contains(t, m.View(), "reconnecting")

	m = update(t, m, appsync.PollResultMsg{})
	assert.Contains(t, m.View(), "online")
}

func TestModel_NavigateAndBack(t *testing.T) {
	m, _ := signedIn(t)

	m = update(t, m, ui.ViewAllMsg{})
	assert.Equal(t, ViewList, m.currentView)

	n := model.Notification{ID: "9", Message: "request matched", Link: "/requests/9"}
	m = update(t, m, ui.NavigateMsg{Notification: n})
	assert.Equal(t, ViewDetail, m.currentView)
	assert.Contains(t, m.View(), "/requests/9")

	// Help from the detail view does not lose the detail's origin.
	m = update(t, m, runes("?"))
	assert.Equal(t, ViewHelp, m.currentView)
	m = update(t, m, runes("?"))
	assert.Equal(t, ViewDetail, m.currentView)

	m = update(t, m, ui.BackMsg{})
	assert.Equal(t, ViewList, m.currentView)

	m = update(t, m, ui.BackMsg{})
	assert.Equal(t, ViewHome, m.currentView)
}

func TestModel_RefreshKey(t *testing.T) {
	m, h := signedIn(t)
	m = update(t, m, appsync.SyncCompleteMsg{})

	m = update(t, m, runes("r"))

	assert.Equal(t, 1, h.sessions.refreshed)
	assert.True(t, m.syncing)
}

func TestModel_CommandPaletteToggle(t *testing.T) {
	m, _ := signedIn(t)

	m = update(t, m, runes(":"))
	assert.Equal(t, ViewCommand, m.currentView)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewHome, m.currentView)
}

func TestModel_QuitStopsSession(t *testing.T) {
	m, h := signedIn(t)

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, h.sessions.stopped)
	assert.Equal(t, 0, h.vault.deleted, "quitting keeps the remembered session")
}
