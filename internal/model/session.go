package model

import (
	"fmt"
	"strings"
)

// Session is an authenticated identity-provider session: the opaque
// provider access token plus the profile fields needed to address the
// user. It is what the login form produces and what the keyring keeps
// between runs.
type Session struct {
	Provider    Provider `json:"provider"`
	AccessToken string   `json:"access_token"`
	Email       string   `json:"email,omitempty"`
	ExternalID  string   `json:"external_id,omitempty"`
	Name        string   `json:"name,omitempty"`
}

// Identity returns the tagged identity variant for the session.
func (s Session) Identity() (Identity, error) {
	provider := s.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	return NewIdentity(provider, s.Email, s.ExternalID, s.Name)
}

// Validate reports whether the session can be used to start syncing.
func (s Session) Validate() error {
	if strings.TrimSpace(s.AccessToken) == "" {
		return fmt.Errorf("session has no access token")
	}
	id, err := s.Identity()
	if err != nil {
		return err
	}
	if IdentityKey(id) == "" {
		return fmt.Errorf("session has no identity key")
	}
	return nil
}
