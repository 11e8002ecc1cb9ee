package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/carrylink/internal/model"
)

const (
	serviceName = "carrylink"
	sessionKey  = "provider-session"
)

// ErrNotFound is returned when no provider session has been saved.
var ErrNotFound = errors.New("no saved provider session")

// Vault keeps the identity-provider session in the system keyring so a
// restart can resume it. The backend credential is never stored.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a Vault backed by the system keyring, falling back to an
// encrypted file under dir.
func Open(dir string) (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("carrylink-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// LoadSession returns the saved provider session.
func (v *Vault) LoadSession() (model.Session, error) {
	item, err := v.ring.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("getting credential %q: %w", sessionKey, err)
	}

	var s model.Session
	if err := json.Unmarshal(item.Data, &s); err != nil {
		return model.Session{}, fmt.Errorf("decoding credential %q: %w", sessionKey, err)
	}
	return s, nil
}

// SaveSession stores s, replacing any previous session.
func (v *Vault) SaveSession(s model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", sessionKey, err)
	}

	err = v.ring.Set(keyring.Item{
		Key:         sessionKey,
		Data:        data,
		Label:       "carrylink provider session",
		Description: string(s.Provider) + " session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", sessionKey, err)
	}
	return nil
}

// DeleteSession removes the saved session. Deleting a missing session is
// not an error.
func (v *Vault) DeleteSession() error {
	err := v.ring.Remove(sessionKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", sessionKey, err)
	}
	return nil
}
