package model

import (
	"fmt"
	"strings"
)

// Provider identifies the external identity provider a session came from.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderLine   Provider = "line"
)

// DefaultProvider is assumed when a session carries no provider tag.
const DefaultProvider = ProviderGoogle

// ParseProvider converts a provider tag into a Provider. An empty tag
// yields DefaultProvider.
func ParseProvider(tag string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(tag))); p {
	case "":
		return DefaultProvider, nil
	case ProviderGoogle, ProviderLine:
		return p, nil
	default:
		return "", fmt.Errorf("unknown identity provider %q", tag)
	}
}

// Identity is the authenticated user as reported by an identity provider.
// It is a closed union: the only implementations are GoogleIdentity and
// LineIdentity.
type Identity interface {
	Provider() Provider

	// DisplayName is a label for the header; it may be empty.
	DisplayName() string

	isIdentity()
}

// GoogleIdentity is a session from the provider that exposes an email.
type GoogleIdentity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (GoogleIdentity) Provider() Provider { return ProviderGoogle }

func (g GoogleIdentity) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Email
}

func (GoogleIdentity) isIdentity() {}

// LineIdentity is a session from the email-less provider, addressed by
// its opaque external user id.
type LineIdentity struct {
	ExternalID string `json:"external_id"`

	// Email is set only when the LINE profile granted the email scope.
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (LineIdentity) Provider() Provider { return ProviderLine }

func (l LineIdentity) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	if l.Email != "" {
		return l.Email
	}
	return l.ExternalID
}

func (LineIdentity) isIdentity() {}

// lineDomain is the mail domain of the pseudo-address that stands in for
// a LINE user without an email.
const lineDomain = "line.me"

// IdentityKey derives the value the backend uses to address a user's
// notifications: the session email when there is one, otherwise the
// pseudo-address "{externalId}@line.me" the backend registers for LINE
// users. It returns an empty string when the identity lacks the field its
// variant requires.
func IdentityKey(id Identity) string {
	switch v := id.(type) {
	case GoogleIdentity:
		return strings.TrimSpace(v.Email)
	case LineIdentity:
		if email := strings.TrimSpace(v.Email); email != "" {
			return email
		}
		ext := strings.TrimSpace(v.ExternalID)
		if ext == "" {
			return ""
		}
		return ext + "@" + lineDomain
	default:
		return ""
	}
}

// NewIdentity builds the Identity variant for provider from the profile
// fields a provider session exposes.
func NewIdentity(provider Provider, email, externalID, name string) (Identity, error) {
	email = strings.TrimSpace(email)
	externalID = strings.TrimSpace(externalID)

	switch provider {
	case ProviderGoogle:
		if email == "" {
			return nil, fmt.Errorf("google identity requires an email")
		}
		return GoogleIdentity{Email: email, Name: name}, nil
	case ProviderLine:
		if externalID == "" && email == "" {
			return nil, fmt.Errorf("line identity requires an external id")
		}
		return LineIdentity{ExternalID: externalID, Email: email, Name: name}, nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", provider)
	}
}
