package models

import (
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the persisted bearer token, expiry and roles triple identifying an active backend session.
type Credential struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Roles       []string  `json:"roles"`
}

// Complete reports whether every part of the triple is present.
//
// Roles may be empty but the token and expiry may not.
func (c *Credential) Complete() bool {
	return c != nil && c.AccessToken != "" && !c.ExpiresAt.IsZero()
}

// Remaining returns the time left until expiry, negative once expired.
func (c *Credential) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Valid reports whether the credential is complete and unexpired at now.
func (c *Credential) Valid(now time.Time) bool {
	return c.Complete() && c.Remaining(now) > 0
}

// HasRole reports whether role was granted to the token.
func (c *Credential) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

// Token converts the credential into an [oauth2.Token] for attaching bearer headers.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Roles = slices.Clone(c.Roles)
	return &out
}
