package session

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/podsession/internal/shared"
	"golang.org/x/time/rate"
)

// Action is what a watchdog check decided to do.
type Action int

const (
	ActionNone Action = iota
	ActionRefresh
	ActionLogout
)

func (a Action) String() string {
	switch a {
	case ActionRefresh:
		return "refresh"
	case ActionLogout:
		return "logout"
	default:
		return "none"
	}
}

// Decide applies the expiry policy to the time remaining on a credential.
func Decide(remaining, lead time.Duration) Action {
	switch {
	case remaining <= 0:
		return ActionLogout
	case remaining <= lead:
		return ActionRefresh
	default:
		return ActionNone
	}
}

// CheckExpiry runs one watchdog check against the stored credential and acts on it.
//
// Refreshes started here are limited to one per watchdog interval. A check while signed out
// or mid-refresh does nothing.
func (m *Manager) CheckExpiry(ctx context.Context) (Action, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ActionNone, shared.ErrSessionClosed
	}
	if m.state != Authenticated {
		m.mu.Unlock()
		return ActionNone, nil
	}

	now := m.now()
	action := ActionLogout
	cred, err := m.store.Load()
	if err == nil && cred.Complete() {
		action = Decide(cred.Remaining(now), m.lead)
	} else if err != nil && !errors.Is(err, shared.ErrNoCredential) {
		m.logger.Warn("watchdog could not read credential", "err", err)
	}

	limiter := m.limiter
	m.mu.Unlock()

	switch action {
	case ActionLogout:
		m.logger.Info("credential expired, signing out")
		return action, m.logout(ctx, ReasonExpired)
	case ActionRefresh:
		if limiter != nil && !limiter.AllowN(now, 1) {
			m.logger.Debug("watchdog refresh throttled")
			return ActionNone, nil
		}
		m.logger.Debug("credential near expiry, refreshing", "remaining", cred.Remaining(now))
		return action, m.RefreshToken(ctx)
	}
	return ActionNone, nil
}

// startWatchdogLocked replaces any running watchdog with a fresh one.
func (m *Manager) startWatchdogLocked() {
	m.stopWatchdogLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.watchdogCancel = cancel
	m.watchdogDone = done
	m.limiter = rate.NewLimiter(rate.Every(m.interval-m.interval/10), 1)

	go m.runWatchdog(ctx, done)
}

// stopWatchdogLocked cancels the running watchdog and returns a channel closed once it exits.
func (m *Manager) stopWatchdogLocked() <-chan struct{} {
	if m.watchdogCancel == nil {
		return nil
	}
	m.watchdogCancel()
	done := m.watchdogDone
	m.watchdogCancel = nil
	m.watchdogDone = nil
	return done
}

func (m *Manager) runWatchdog(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			action, err := m.CheckExpiry(ctx)
			if err != nil && !errors.Is(err, shared.ErrSessionSuperseded) {
				m.logger.Warn("watchdog check failed", "action", action, "err", err)
			}
		}
	}
}
