// package services wraps the HTTP endpoints of the Auth Backend
package services

import (
	"net/http"

	"github.com/desertthunder/podsession/internal/shared"
	"golang.org/x/oauth2"
)

// NewHTTPClient builds the client used for every backend call.
func NewHTTPClient(cfg shared.BackendConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout()}
}

// NewFromConfig wires an [APIService] and [AuthService] for the configured backend.
func NewFromConfig(cfg shared.BackendConfig, tokens oauth2.TokenSource) (*APIService, *AuthService) {
	api := NewAPIService(cfg.BaseURL, NewHTTPClient(cfg))
	return api, NewAuthService(api, tokens, cfg.GrantType)
}
