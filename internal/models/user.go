package models

import (
	"slices"
	"strings"
)

// UserProfile is the authenticated identity as reported by GET /user/profile.
type UserProfile struct {
	Email       string   `json:"email"`
	FullName    string   `json:"fullName"`
	PhoneNumber string   `json:"phoneNumber"`
	Address     string   `json:"address"`
	Roles       []string `json:"roles"`
}

// DisplayName prefers the full name and falls back to the email address.
func (u *UserProfile) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Email
}

// Clone returns a deep copy of the profile.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = slices.Clone(u.Roles)
	return &out
}
