package login

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carrylink/internal/model"
	"github.com/nhle/carrylink/internal/theme"
)

// SubmitMsg is dispatched when the user completes the sign-in form.
type SubmitMsg struct {
	Session model.Session
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	provider    string
	accessToken string
	email       string
	externalID  string
	name        string
}

// Model is the sign-in form. It collects the identity-provider session
// the user obtained out of band.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	errMsg string
	width  int
	height int
}

// New creates a new sign-in form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{provider: string(model.DefaultProvider)},
		width:  width,
		height: height,
	}
}

// Start initializes the form, prefilled from prev when one is given.
func (m *Model) Start(prev *model.Session) tea.Cmd {
	*m.fb = formBindings{provider: string(model.DefaultProvider)}
	if prev != nil {
		if prev.Provider != "" {
			m.fb.provider = string(prev.Provider)
		}
		m.fb.email = prev.Email
		m.fb.externalID = prev.ExternalID
		m.fb.name = prev.Name
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// SetError shows err above the form, e.g. when a submitted session was
// rejected. A nil err clears it.
func (m *Model) SetError(err error) {
	if err == nil {
		m.errMsg = ""
		return
	}
	m.errMsg = err.Error()
}

// Update handles messages for the sign-in form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		session, err := m.fb.session()
		if err != nil {
			// Keep what was typed and ask again.
			m.SetError(err)
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		return m, func() tea.Msg { return SubmitMsg{Session: session} }
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the sign-in form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Sign in") + "\n"
	if m.errMsg != "" {
		content += lipgloss.NewStyle().Foreground(theme.ColorRed).Render("⚠ "+m.errMsg) + "\n\n"
	}
	content += m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Identity provider").
				Options(
					huh.NewOption("Google", string(model.ProviderGoogle)),
					huh.NewOption("LINE", string(model.ProviderLine)),
				).
				Value(&m.fb.provider),
			huh.NewInput().
				Title("Access token").
				Description("The provider access token from your browser session.").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.accessToken).
				Validate(validateRequired("Access token")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("required for Google, optional for LINE").
				Value(&m.fb.email),
			huh.NewInput().
				Title("LINE user id").
				Placeholder("U1234... (LINE only)").
				Value(&m.fb.externalID),
			huh.NewInput().
				Title("Display name").
				Placeholder("optional").
				Value(&m.fb.name).
				Validate(m.validateSession),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// validateSession runs on the last field so the form cannot complete
// with a session that has no identity key.
func (m *Model) validateSession(string) error {
	_, err := m.fb.session()
	return err
}

// session builds and validates the session the bindings describe.
func (fb *formBindings) session() (model.Session, error) {
	provider, err := model.ParseProvider(fb.provider)
	if err != nil {
		return model.Session{}, err
	}
	s := model.Session{
		Provider:    provider,
		AccessToken: strings.TrimSpace(fb.accessToken),
		Email:       strings.TrimSpace(fb.email),
		ExternalID:  strings.TrimSpace(fb.externalID),
		Name:        strings.TrimSpace(fb.name),
	}
	if err := s.Validate(); err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 6
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
