package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/shared"
	"github.com/desertthunder/podsession/internal/session"
)

// AdminRole gates the session history route.
const AdminRole = "admin"

const defaultHistoryLimit = 50

// Session is the part of [session.Manager] the gateway drives.
type Session interface {
	SessionView
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	RefreshToken(ctx context.Context) error
	FetchProfile(ctx context.Context) (*models.UserProfile, error)
}

// History lists recorded session events, newest first.
type History interface {
	List(limit int) ([]*models.SessionEvent, error)
}

// SessionHandler serves the session routes.
type SessionHandler struct {
	sess         Session
	landingRoute string
	logger       *log.Logger
}

// NewSessionHandler creates a [SessionHandler]. Browser logouts are redirected to landingRoute.
func NewSessionHandler(sess Session, landingRoute string, logger *log.Logger) *SessionHandler {
	return &SessionHandler{sess: sess, landingRoute: landingRoute, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *SessionHandler) Routes() []string {
	return []string{
		"GET /session",
		"POST /session/login",
		"POST /session/logout",
		"POST /session/refresh",
	}
}

// ServeHTTP dispatches on the matched route pattern.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Pattern {
	case "GET /session":
		writeSuccess(w, http.StatusOK, "", h.sess.Snapshot())
	case "POST /session/login":
		h.login(w, r)
	case "POST /session/logout":
		h.logout(w, r)
	case "POST /session/refresh":
		h.refresh(w, r)
	default:
		http.NotFound(w, r)
	}
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *SessionHandler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be JSON with email and password")
		return
	}

	if err := h.sess.Login(r.Context(), body.Email, body.Password); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "signed in", h.sess.Snapshot())
}

func (h *SessionHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	if wantsHTML(r) {
		http.Redirect(w, r, h.landingRoute, http.StatusSeeOther)
		return
	}
	writeSuccess(w, http.StatusOK, "signed out", h.sess.Snapshot())
}

func (h *SessionHandler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.RefreshToken(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "token refreshed", h.sess.Snapshot())
}

// NewGateway assembles the gateway routes.
//
// history may be nil, in which case the history route is not registered.
func NewGateway(sess Session, history History, cfg shared.ServerConfig, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(Logging(logger))
	router.Handler(NewSessionHandler(sess, cfg.LandingRoute, logger))

	requireSession := RequireSession(sess, cfg.LoginRoute)

	router.Handle(http.MethodGet, "/me", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := sess.FetchProfile(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "", profile)
	}), requireSession)

	if history != nil {
		requireAdmin := RequireRole(sess, AdminRole, logger)
		router.Handle(http.MethodGet, "/session/history", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := defaultHistoryLimit
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					writeFailure(w, http.StatusBadRequest, "limit must be a positive integer")
					return
				}
				limit = n
			}

			events, err := history.List(limit)
			if err != nil {
				logger.Error("failed to list session history", "err", err)
				writeFailure(w, http.StatusInternalServerError, "failed to load history")
				return
			}
			writeSuccess(w, http.StatusOK, "", events)
		}), requireSession, requireAdmin)
	}

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess[T any](w http.ResponseWriter, status int, message string, data T) {
	writeJSON(w, status, models.Envelope[T]{IsSuccess: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.Envelope[any]{IsSuccess: false, Message: message})
}

// writeError maps session and backend errors onto HTTP statuses, keeping backend messages.
func writeError(w http.ResponseWriter, err error) {
	writeFailure(w, StatusFor(err), err.Error())
}

// StatusFor picks the HTTP status reported for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrOTP):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrAuthentication),
		errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrRefreshFailed):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrSessionSuperseded):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var _ Session = (*session.Manager)(nil)
