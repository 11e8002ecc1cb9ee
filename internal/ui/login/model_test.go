package login

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carrylink/internal/model"
)

func TestFormBindings_Session(t *testing.T) {
	tests := []struct {
		name    string
		fb      formBindings
		want    model.Session
		wantErr bool
	}{
		{
			name: "google with email",
			fb:   formBindings{provider: "google", accessToken: " tok ", email: "a@b.com"},
			want: model.Session{Provider: model.ProviderGoogle, AccessToken: "tok", Email: "a@b.com"},
		},
		{
			name: "line with external id",
			fb:   formBindings{provider: "line", accessToken: "tok", externalID: "U123", name: "Mika"},
			want: model.Session{Provider: model.ProviderLine, AccessToken: "tok", ExternalID: "U123", Name: "Mika"},
		},
		{
			name:    "google without email",
			fb:      formBindings{provider: "google", accessToken: "tok"},
			wantErr: true,
		},
		{
			name:    "line without id or email",
			fb:      formBindings{provider: "line", accessToken: "tok"},
			wantErr: true,
		},
		{
			name:    "missing token",
			fb:      formBindings{provider: "google", email: "a@b.com"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			fb:      formBindings{provider: "github", accessToken: "tok", email: "a@b.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fb.session()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModel_StartPrefills(t *testing.T) {
	m := New(80, 24)
	m.Start(&model.Session{Provider: model.ProviderLine, ExternalID: "U9", AccessToken: "secret"})

	assert.Equal(t, "line", m.fb.provider)
	assert.Equal(t, "U9", m.fb.externalID)
	assert.Empty(t, m.fb.accessToken, "the access token is never prefilled")
	assert.Contains(t, m.View(), "Sign in")
}

func TestModel_StartResetsBindings(t *testing.T) {
	m := New(80, 24)
	m.Start(&model.Session{Provider: model.ProviderLine, ExternalID: "U9"})
	m.Start(nil)

	assert.Equal(t, "google", m.fb.provider)
	assert.Empty(t, m.fb.externalID)
}

func TestModel_SetError(t *testing.T) {
	m := New(80, 24)
	m.Start(nil)

	m.SetError(errors.New("session has no identity key"))
	assert.Contains(t, m.View(), "session has no identity key")

	m.SetError(nil)
	assert.NotContains(t, m.View(), "⚠")
}

func TestModel_UpdateWithoutForm(t *testing.T) {
	m := New(80, 24)
	_, cmd := m.Update(nil)
	assert.Nil(t, cmd)
	assert.Empty(t, m.View())
}

func TestValidateRequired(t *testing.T) {
	v := validateRequired("Access token")
	assert.Error(t, v("  "))
	assert.NoError(t, v("tok"))
}
