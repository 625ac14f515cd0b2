package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/services"
	"github.com/desertthunder/podsession/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultWatchdogInterval = time.Minute
	DefaultRefreshLead      = 5 * time.Minute
	DefaultLogoutTimeout    = 5 * time.Second
)

// Backend is the Auth Backend the manager talks to.
type Backend interface {
	Register(ctx context.Context, reg models.Registration) (*models.RegisterResult, error)
	VerifyOTP(ctx context.Context, v models.OTPVerification) error
	Login(ctx context.Context, email, password string) (*models.Credential, error)
	Refresh(ctx context.Context) (*models.Credential, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*models.UserProfile, error)
}

// CredentialStore persists the single credential. Load returns [shared.ErrNoCredential] when empty.
type CredentialStore interface {
	Load() (*models.Credential, error)
	Save(c *models.Credential) error
	Clear() error
}

// Option configures a [Manager].
type Option func(*Manager)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithWatchdogInterval sets how often the watchdog checks expiry.
func WithWatchdogInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRefreshLead sets how long before expiry the watchdog refreshes.
func WithRefreshLead(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lead = d
		}
	}
}

// WithLogoutTimeout bounds the remote logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}

// WithEventHook registers fn to receive every event.
//
// Hooks run one at a time, outside the manager's lock.
func WithEventHook(fn func(Event)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.hooks = append(m.hooks, fn)
		}
	}
}

// Manager owns the authentication state for one client.
//
// Every completion of a backend call compares the generation captured when the call started
// with the current one and discards its result on mismatch. Logout and every login that
// persists a credential advance the generation. Backend calls made on behalf of a session
// carry that session's own token rather than whatever the store holds.
type Manager struct {
	backend Backend
	store   CredentialStore
	logger  *log.Logger
	now     func() time.Time
	hooks   []func(Event)

	interval      time.Duration
	lead          time.Duration
	logoutTimeout time.Duration

	mu           sync.Mutex
	state        State
	user         *models.UserProfile
	cred         *models.Credential
	generation   uint64
	loading      int
	bootstrapped bool
	closed       bool
	pending      []Event

	limiter        *rate.Limiter
	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}

	refreshGroup singleflight.Group
	dispatchMu   sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a manager in the Bootstrapping state. Call [Manager.Bootstrap] next.
func New(backend Backend, store CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		backend:       backend,
		store:         store,
		logger:        log.New(io.Discard),
		now:           time.Now,
		interval:      DefaultWatchdogInterval,
		lead:          DefaultRefreshLead,
		logoutTimeout: DefaultLogoutTimeout,
		state:         Bootstrapping,
		loading:       1,
		subs:          map[int]chan Event{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bootstrap reconciles the stored credential with in-memory state.
//
// Backend failures demote the session silently and are not returned.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return shared.ErrSessionClosed
	}
	if m.bootstrapped {
		m.loading++
	}
	m.bootstrapped = true
	defer m.doneLoading()

	gen := m.generation
	cred, err := m.store.Load()
	if err != nil || !cred.Valid(m.now()) {
		switch {
		case err != nil && !errors.Is(err, shared.ErrNoCredential):
			m.logger.Warn("stored credential unreadable", "err", err)
		case err == nil:
			m.logger.Info("stored credential expired", "expires_at", cred.ExpiresAt)
		}
		m.demoteLocked(nil, ReasonExpired)
		m.mu.Unlock()
		m.flush()
		return nil
	}
	m.mu.Unlock()

	profile, err := m.backend.Profile(services.ContextWithToken(ctx, cred.Token()))

	m.mu.Lock()
	if m.closed || m.generation != gen {
		m.mu.Unlock()
		return shared.ErrSessionSuperseded
	}
	if err != nil {
		m.logger.Warn("profile fetch failed during bootstrap", "err", err)
		m.demoteLocked(cred, reasonFor(err))
		m.mu.Unlock()
		m.flush()
		return nil
	}

	m.beginSessionLocked(cred, profile)
	m.mu.Unlock()
	m.flush()
	return nil
}

// Login authenticates with the backend, persists the credential and loads the profile
// using that credential.
//
// Either every step succeeds or nothing observable changes. When logins overlap, the
// first to persist its credential wins and the others fail with [shared.ErrSessionSuperseded].
func (m *Manager) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return shared.NewValidationError("email and password are required")
	}

	gen, err := m.beginOperation()
	if err != nil {
		return err
	}
	defer m.doneLoading()

	cred, err := m.backend.Login(ctx, email, password)
	if err != nil {
		m.logger.Info("login rejected", "email", email, "err", err)
		return err
	}

	m.mu.Lock()
	if m.closed || m.generation != gen {
		m.mu.Unlock()
		return shared.ErrSessionSuperseded
	}
	if err := m.store.Save(cred); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	// The store now belongs to this login; older in-flight calls must not write over it.
	m.generation++
	gen = m.generation
	m.mu.Unlock()

	profile, profileErr := m.backend.Profile(services.ContextWithToken(ctx, cred.Token()))

	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()

	if m.closed || m.generation != gen {
		m.restoreIfOwnedLocked(cred)
		return shared.ErrSessionSuperseded
	}
	if profileErr != nil {
		m.restoreLocked()
		return profileErr
	}

	m.generation++
	m.beginSessionLocked(cred, profile)
	return nil
}

// Register submits a new account without signing in.
func (m *Manager) Register(ctx context.Context, reg models.Registration) (*models.RegisterResult, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if _, err := m.beginOperation(); err != nil {
		return nil, err
	}
	defer m.doneLoading()

	return m.backend.Register(ctx, reg)
}

// VerifyOTP confirms a one-time password. It does not sign in.
func (m *Manager) VerifyOTP(ctx context.Context, v models.OTPVerification) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if _, err := m.beginOperation(); err != nil {
		return err
	}
	defer m.doneLoading()

	return m.backend.VerifyOTP(ctx, v)
}

// Logout clears local state first, then tells the backend on a best-effort basis.
//
// It only fails once the manager is closed.
func (m *Manager) Logout(ctx context.Context) error {
	return m.logout(ctx, ReasonLogout)
}

func (m *Manager) logout(ctx context.Context, reason Reason) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return shared.ErrSessionClosed
	}

	var tok *oauth2.Token
	if m.cred != nil {
		tok = m.cred.Token()
	} else if stored, err := m.store.Load(); err == nil {
		tok = stored.Token()
	}

	m.endSessionLocked(reason)
	m.mu.Unlock()
	m.flush()

	if tok != nil {
		m.remoteLogout(ctx, tok)
	}
	return nil
}

func (m *Manager) remoteLogout(ctx context.Context, tok *oauth2.Token) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.logoutTimeout)
	defer cancel()

	if err := m.backend.Logout(services.ContextWithToken(ctx, tok)); err != nil {
		m.logger.Warn("remote logout failed", "err", err)
	}
}

// RefreshToken exchanges the session's credential for a new one.
//
// Concurrent callers share one backend call. Failure ends the session the way
// [Manager.Logout] does, including the best-effort remote logout.
func (m *Manager) RefreshToken(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return shared.ErrSessionClosed
	}
	if !m.state.Active() || m.cred == nil {
		m.mu.Unlock()
		return shared.ErrNotAuthenticated
	}
	gen := m.generation
	tok := m.cred.Token()
	m.transitionLocked(Refreshing)
	m.mu.Unlock()
	m.flush()

	cred, err := m.backend.Refresh(services.ContextWithToken(ctx, tok))

	m.mu.Lock()
	if m.closed || m.generation != gen {
		// A login took over the store; the session it replaces is still live until it finishes.
		if m.state == Refreshing {
			m.transitionLocked(Authenticated)
		}
		m.mu.Unlock()
		m.flush()
		return shared.ErrSessionSuperseded
	}
	if err == nil {
		err = m.store.Save(cred)
	}
	if err != nil {
		m.logger.Warn("token refresh failed, ending session", "err", err)
		m.endSessionLocked(ReasonRefreshFailed)
		m.mu.Unlock()
		m.flush()

		m.remoteLogout(ctx, tok)
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	m.cred = cred.Clone()
	m.transitionLocked(Authenticated)
	m.queueLocked(Event{Kind: EventTokenRefreshed, From: Refreshing, To: Authenticated, Email: m.emailLocked()})
	m.logger.Debug("token refreshed", "expires_at", cred.ExpiresAt)
	m.mu.Unlock()
	m.flush()
	return nil
}

// FetchProfile reloads the cached profile. A 401 ends the session.
func (m *Manager) FetchProfile(ctx context.Context) (*models.UserProfile, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, shared.ErrSessionClosed
	}
	if !m.state.Active() || m.cred == nil {
		m.mu.Unlock()
		return nil, shared.ErrNotAuthenticated
	}
	gen := m.generation
	tok := m.cred.Token()
	m.mu.Unlock()

	profile, err := m.backend.Profile(services.ContextWithToken(ctx, tok))

	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()

	if m.closed || m.generation != gen {
		return nil, shared.ErrSessionSuperseded
	}
	if err != nil {
		if errors.Is(err, shared.ErrUnauthorized) {
			m.endSessionLocked(ReasonUnauthorized)
		}
		return nil, err
	}

	m.user = profile.Clone()
	return profile, nil
}

// Close stops the watchdog and closes subscriber channels. Later calls fail with [shared.ErrSessionClosed].
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	done := m.stopWatchdogLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	m.flush()
	m.closeSubscribers()
	return nil
}

// IsAuthenticated reports a signed-in session holding an unexpired credential.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticatedLocked()
}

// IsLoading reports a pending bootstrap or an auth operation in flight.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading > 0
}

// User returns a copy of the cached profile, nil when signed out.
func (m *Manager) User() *models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.Clone()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot is a consistent view of the session at one instant.
type Snapshot struct {
	State         State               `json:"state"`
	Authenticated bool                `json:"authenticated"`
	Loading       bool                `json:"loading"`
	User          *models.UserProfile `json:"user,omitempty"`
	Roles         []string            `json:"roles,omitempty"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	Remaining     time.Duration       `json:"-"`
}

// HasRole reports whether the credential grants role.
func (s Snapshot) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// Snapshot returns the current state, profile and credential expiry together.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:         m.state,
		Authenticated: m.authenticatedLocked(),
		Loading:       m.loading > 0,
		User:          m.user.Clone(),
	}
	if m.cred != nil && snap.Authenticated {
		c := m.cred.Clone()
		snap.Roles = c.Roles
		snap.ExpiresAt = &c.ExpiresAt
		snap.Remaining = c.Remaining(m.now())
	}
	return snap
}

// TokenSource exposes the live credential for attaching bearer headers.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return managerTokenSource{m: m}
}

type managerTokenSource struct {
	m *Manager
}

func (s managerTokenSource) Token() (*oauth2.Token, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if !s.m.authenticatedLocked() {
		return nil, shared.ErrNotAuthenticated
	}
	return s.m.cred.Token(), nil
}

func (m *Manager) authenticatedLocked() bool {
	return m.state.Active() && m.cred.Valid(m.now())
}

func (m *Manager) emailLocked() string {
	if m.user == nil {
		return ""
	}
	return m.user.Email
}

// beginOperation marks an explicit auth call as loading and returns the current generation.
func (m *Manager) beginOperation() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, shared.ErrSessionClosed
	}
	m.loading++
	return m.generation, nil
}

func (m *Manager) doneLoading() {
	m.mu.Lock()
	if m.loading > 0 {
		m.loading--
	}
	m.mu.Unlock()
}

func (m *Manager) transitionLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		m.logger.Error("invalid session transition", "from", from, "to", to)
		return
	}
	m.state = to
	m.logger.Debug("session state changed", "from", from, "to", to)
	m.queueLocked(Event{Kind: EventStateChanged, From: from, To: to, Email: m.emailLocked()})
}

func (m *Manager) beginSessionLocked(cred *models.Credential, profile *models.UserProfile) {
	from := m.state
	m.cred = cred.Clone()
	m.user = profile.Clone()
	m.transitionLocked(Authenticated)
	m.queueLocked(Event{Kind: EventSessionStarted, From: from, To: Authenticated, Email: m.emailLocked()})
	m.startWatchdogLocked()
	m.logger.Info("session started", "email", m.emailLocked(), "expires_at", cred.ExpiresAt)
}

// endSessionLocked clears the stored credential and in-memory identity and advances the generation.
func (m *Manager) endSessionLocked(reason Reason) {
	m.generation++
	from := m.state
	email := m.emailLocked()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear stored credential", "err", err)
	}
	m.cred = nil
	m.user = nil
	m.stopWatchdogLocked()
	m.transitionLocked(Unauthenticated)

	if from.Active() || reason == ReasonLogout {
		m.queueLocked(Event{Kind: EventSessionEnded, From: from, To: Unauthenticated, Reason: reason, Email: email})
		m.logger.Info("session ended", "reason", reason, "email", email)
	}
}

// demoteLocked signs out after a failed bootstrap.
//
// An inactive session keeps its generation so a login already in flight still completes.
// When loaded is set the store is only cleared if it still holds that credential.
func (m *Manager) demoteLocked(loaded *models.Credential, reason Reason) {
	if m.state.Active() {
		m.endSessionLocked(reason)
		return
	}

	if loaded == nil {
		if err := m.store.Clear(); err != nil {
			m.logger.Warn("failed to clear stored credential", "err", err)
		}
	} else {
		m.restoreIfOwnedLocked(loaded)
	}
	m.cred = nil
	m.user = nil
	m.transitionLocked(Unauthenticated)
}

// restoreLocked puts the store back in line with the in-memory session.
func (m *Manager) restoreLocked() {
	var err error
	if m.cred != nil {
		err = m.store.Save(m.cred)
	} else {
		err = m.store.Clear()
	}
	if err != nil {
		m.logger.Warn("failed to restore stored credential", "err", err)
	}
}

// restoreIfOwnedLocked undoes a superseded login's write when nothing replaced it since.
func (m *Manager) restoreIfOwnedLocked(cred *models.Credential) {
	stored, err := m.store.Load()
	if err != nil || stored.AccessToken != cred.AccessToken {
		return
	}
	m.restoreLocked()
}

func reasonFor(err error) Reason {
	if errors.Is(err, shared.ErrUnauthorized) {
		return ReasonUnauthorized
	}
	return ReasonExpired
}
