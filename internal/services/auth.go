package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/shared"
	"golang.org/x/oauth2"
)

const (
	registerPath  = "/auth/register"
	verifyOTPPath = "/auth/verify-otp"
	loginPath     = "/auth/login"
	refreshPath   = "/auth/refresh-token"
	logoutPath    = "/auth/logout"
	profilePath   = "/user/profile"

	DefaultGrantType = "password"
)

// AuthService talks to the Auth Backend's account and token endpoints.
type AuthService struct {
	api       *APIService
	tokens    oauth2.TokenSource
	grantType string
}

// NewAuthService creates an [AuthService].
//
// tokens supplies the bearer credential for authenticated endpoints and may be nil
// when every such call carries its token on the context.
func NewAuthService(api *APIService, tokens oauth2.TokenSource, grantType string) *AuthService {
	if grantType == "" {
		grantType = DefaultGrantType
	}
	return &AuthService{api: api, tokens: tokens, grantType: grantType}
}

// envelope mirrors [models.Envelope] but keeps isSuccess optional so bare payloads can be told apart.
type envelope struct {
	IsSuccess *bool           `json:"isSuccess"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// Register submits a new account. The returned result echoes where the OTP was sent.
func (s *AuthService) Register(ctx context.Context, reg models.Registration) (*models.RegisterResult, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	env, err := s.call(ctx, http.MethodPost, registerPath, reg, false, shared.ErrValidation)
	if err != nil {
		return nil, err
	}

	return &models.RegisterResult{
		Contact: reg.Contact(),
		Channel: reg.OTPSentChannel,
		Message: env.Message,
	}, nil
}

// VerifyOTP confirms a one-time password. It never establishes a session.
func (s *AuthService) VerifyOTP(ctx context.Context, v models.OTPVerification) error {
	if err := v.Validate(); err != nil {
		return err
	}
	_, err := s.call(ctx, http.MethodPost, verifyOTPPath, v, false, shared.ErrOTP)
	return err
}

// Login exchanges an email and password for a credential.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Credential, error) {
	body := models.LoginRequest{Email: email, Password: password, GrantType: s.grantType}

	env, err := s.call(ctx, http.MethodPost, loginPath, body, false, shared.ErrAuthentication)
	if err != nil {
		return nil, err
	}

	cred, err := parseCredential(env.Data)
	if err != nil {
		return nil, &shared.BackendError{Kind: shared.ErrAuthentication, Message: "login response did not include a usable credential", Err: err}
	}
	return cred, nil
}

// Refresh trades the current bearer credential for a new one.
func (s *AuthService) Refresh(ctx context.Context) (*models.Credential, error) {
	env, err := s.call(ctx, http.MethodPost, refreshPath, nil, true, shared.ErrRefreshFailed)
	if err != nil {
		return nil, err
	}

	cred, err := parseCredential(env.Data)
	if err != nil {
		return nil, &shared.BackendError{Kind: shared.ErrRefreshFailed, Message: "refresh response did not include a usable credential", Err: err}
	}
	return cred, nil
}

// Logout ends the backend session for the current bearer credential.
func (s *AuthService) Logout(ctx context.Context) error {
	_, err := s.call(ctx, http.MethodPost, logoutPath, nil, true, shared.ErrAPIRequest)
	return err
}

// Profile fetches the authenticated user's profile.
func (s *AuthService) Profile(ctx context.Context) (*models.UserProfile, error) {
	env, err := s.call(ctx, http.MethodGet, profilePath, nil, true, shared.ErrAPIRequest)
	if err != nil {
		return nil, err
	}

	var profile models.UserProfile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		return nil, &shared.BackendError{Kind: shared.ErrAPIRequest, Message: "failed to decode profile", Err: err}
	}
	return &profile, nil
}

// Authorize returns ctx carrying the bearer token requests should use.
func (s *AuthService) Authorize(ctx context.Context) (context.Context, error) {
	if _, ok := TokenFromContext(ctx); ok {
		return ctx, nil
	}
	if s.tokens == nil {
		return nil, shared.ErrNotAuthenticated
	}

	tok, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("%w: stored credential expired", shared.ErrNotAuthenticated)
	}
	return ContextWithToken(ctx, tok), nil
}

// call performs one backend request and classifies failures.
//
// failure is the error kind reported for non-401 rejections. A 401 is reported as
// [shared.ErrUnauthorized] except on login, where it means bad credentials.
func (s *AuthService) call(ctx context.Context, method, path string, body any, authorized bool, failure error) (*envelope, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if authorized {
		var err error
		if ctx, err = s.Authorize(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.api.Do(ctx, method, path, data)
	if err != nil {
		return nil, shared.NewNetworkError(err)
	}

	env := &envelope{}
	if resp.IsJSON && bytes.HasPrefix(bytes.TrimSpace(resp.Body), []byte("{")) {
		_ = json.Unmarshal(resp.Body, env)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		kind := shared.ErrUnauthorized
		if failure == shared.ErrAuthentication {
			kind = shared.ErrAuthentication
		}
		return nil, &shared.BackendError{Kind: kind, Status: resp.StatusCode, Message: messageOr(env.Message, resp.StatusCode)}
	}

	if !resp.OK() || (env.IsSuccess != nil && !*env.IsSuccess) {
		return nil, &shared.BackendError{Kind: failure, Status: resp.StatusCode, Message: messageOr(env.Message, resp.StatusCode)}
	}

	if env.IsSuccess == nil && resp.IsJSON {
		// bare payload without the envelope
		env.Data = resp.Body
	}

	return env, nil
}

func messageOr(msg string, status int) string {
	if msg != "" {
		return msg
	}
	if status >= 200 && status < 300 {
		return ""
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}
