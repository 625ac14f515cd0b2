package session

import (
	"time"

	"github.com/desertthunder/podsession/internal/models"
)

// EventKind identifies what happened to the session.
type EventKind string

const (
	EventStateChanged   EventKind = "state_changed"
	EventSessionStarted EventKind = "session_started"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventSessionEnded   EventKind = "session_ended"
)

// Reason explains why a session ended.
type Reason string

const (
	ReasonLogout        Reason = "logout"
	ReasonExpired       Reason = "expired"
	ReasonRefreshFailed Reason = "refresh_failed"
	ReasonUnauthorized  Reason = "unauthorized"
)

// Event is published for every state change and session boundary.
//
// Hosts navigate away from authenticated views on [EventSessionEnded].
type Event struct {
	Kind   EventKind
	From   State
	To     State
	Reason Reason
	Email  string
	At     time.Time
}

// Record converts the event for the history table.
func (e Event) Record() *models.SessionEvent {
	return &models.SessionEvent{
		Kind:      string(e.Kind),
		From:      string(e.From),
		To:        string(e.To),
		Reason:    string(e.Reason),
		Email:     e.Email,
		CreatedAt: e.At,
	}
}

// Subscribe returns a channel receiving every later event and a func that cancels the subscription.
//
// Sends never block. Events are dropped for a subscriber whose buffer is full.
// The channel is closed on unsubscribe or when the manager closes.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.subs == nil {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// queueLocked stages an event for delivery once m.mu is released.
func (m *Manager) queueLocked(e Event) {
	if e.At.IsZero() {
		e.At = m.now()
	}
	m.pending = append(m.pending, e)
}

func (m *Manager) takePending() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.pending
	m.pending = nil
	return events
}

func (m *Manager) hasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0
}

// flush delivers queued events in order. It must be called without holding m.mu.
//
// Only one goroutine dispatches at a time; events queued by a hook are picked up by the
// dispatcher already running.
func (m *Manager) flush() {
	for {
		if !m.dispatchMu.TryLock() {
			return
		}
		for {
			events := m.takePending()
			if len(events) == 0 {
				break
			}
			for _, e := range events {
				m.dispatch(e)
			}
		}
		m.dispatchMu.Unlock()

		if !m.hasPending() {
			return
		}
	}
}

func (m *Manager) dispatch(e Event) {
	for _, hook := range m.hooks {
		hook(e)
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (m *Manager) closeSubscribers() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.subs = nil
}
