package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podsession/internal/session"
)

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging logs each request with its status and latency.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"latency", time.Since(start).Round(time.Microsecond),
			)
		})
	}
}

// SessionView is the read side of a session that gating middleware needs.
type SessionView interface {
	Snapshot() session.Snapshot
}

// RequireSession rejects requests while no session is authenticated.
//
// Browsers (Accept: text/html) are redirected to loginRoute; everything else gets a 401 envelope.
func RequireSession(sess SessionView, loginRoute string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess.Snapshot().Authenticated {
				next.ServeHTTP(w, r)
				return
			}

			if wantsHTML(r) {
				http.Redirect(w, r, loginRoute, http.StatusSeeOther)
				return
			}
			writeFailure(w, http.StatusUnauthorized, "authentication required")
		})
	}
}

// RequireRole answers 403 unless the session's credential grants role.
// Place it after [RequireSession].
func RequireRole(sess SessionView, role string, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := sess.Snapshot()
			if !snap.HasRole(role) {
				email := ""
				if snap.User != nil {
					email = snap.User.Email
				}
				logger.Warn("role check denied", "path", r.URL.Path, "required_role", role, "email", email)
				writeFailure(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
