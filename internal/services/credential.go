package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/podsession/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// expiry layouts accepted from the backend, tried in order
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// credentialPayload is the data block returned by login and refresh.
type credentialPayload struct {
	AccessToken string          `json:"accessToken"`
	ExpiresAt   json.RawMessage `json:"expiresAt"`
	Roles       []string        `json:"roles"`
}

// parseCredential turns a login or refresh payload into a [models.Credential].
//
// A missing expiresAt or roles is filled from the access token's claims when it is a JWT.
func parseCredential(data []byte) (*models.Credential, error) {
	var p credentialPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	if p.AccessToken == "" {
		return nil, fmt.Errorf("credential payload has no access token")
	}

	cred := &models.Credential{AccessToken: p.AccessToken, Roles: p.Roles}

	expiry, err := parseExpiry(p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	cred.ExpiresAt = expiry

	if cred.ExpiresAt.IsZero() || cred.Roles == nil {
		claims := tokenClaims(p.AccessToken)
		if cred.ExpiresAt.IsZero() {
			cred.ExpiresAt = claims.expiry
		}
		if cred.Roles == nil {
			cred.Roles = claims.roles
		}
	}

	if !cred.Complete() {
		return nil, fmt.Errorf("credential payload has no usable expiry")
	}
	if cred.Roles == nil {
		cred.Roles = []string{}
	}

	return cred, nil
}

// epochMillisThreshold separates unix seconds from unix milliseconds.
// As seconds it is the year 5138; as milliseconds, March 1973.
const epochMillisThreshold = 1e11

// parseExpiry accepts an ISO-8601 string (zone optional, UTC assumed), unix seconds or unix milliseconds.
func parseExpiry(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		n, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid expiresAt %s: %w", raw, err)
		}
		if n <= 0 {
			return time.Time{}, fmt.Errorf("invalid expiresAt %s: not a positive timestamp", raw)
		}
		if n >= epochMillisThreshold {
			return time.UnixMilli(int64(n)).UTC(), nil
		}
		return time.Unix(int64(n), 0).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("invalid expiresAt %s: %w", raw, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiresAt %q", s)
}

type accessClaims struct {
	expiry time.Time
	roles  []string
}

// tokenClaims reads exp and roles from an access token without verifying its signature.
// Opaque tokens yield zero values.
func tokenClaims(raw string) accessClaims {
	var out accessClaims

	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return out
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return out
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.expiry = exp.UTC()
	}

	for _, key := range []string{"roles", "role"} {
		switch v := claims[key].(type) {
		case string:
			out.roles = []string{v}
		case []any:
			for _, r := range v {
				if s, ok := r.(string); ok {
					out.roles = append(out.roles, s)
				}
			}
		}
		if out.roles != nil {
			break
		}
	}

	return out
}
