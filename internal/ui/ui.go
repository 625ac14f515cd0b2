package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/podsession/internal/session"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SignedInView ViewState = iota
	SignedOutView
)

const (
	tickInterval = time.Second
	eventBuffer  = 32
	// Snapshot area above the event log.
	headerHeight = 12
)

// Monitor is the session surface the TUI drives.
type Monitor interface {
	Snapshot() session.Snapshot
	RefreshToken(ctx context.Context) error
	Logout(ctx context.Context) error
	Subscribe(buffer int) (<-chan session.Event, func())
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	view        ViewState
	sess        Monitor
	events      <-chan session.Event
	unsubscribe func()
	snapshot    session.Snapshot
	refreshLead time.Duration
	eventList   list.Model
	endReason   session.Reason
	status      string
	busy        bool
	err         error
	width       int
	height      int
	help        help.Model
	keys        keyMap
}

// NewModel creates a monitor subscribed to sess.
//
// refreshLead only affects rendering: the countdown turns to a warning inside it.
func NewModel(ctx context.Context, sess Monitor, refreshLead time.Duration) *Model {
	events, unsubscribe := sess.Subscribe(eventBuffer)

	eventList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	eventList.Title = "Events"
	eventList.SetShowHelp(false)
	eventList.SetFilteringEnabled(false)

	m := &Model{
		ctx:         ctx,
		sess:        sess,
		events:      events,
		unsubscribe: unsubscribe,
		snapshot:    sess.Snapshot(),
		refreshLead: refreshLead,
		eventList:   eventList,
		help:        help.New(),
		keys:        newKeyMap(),
	}
	m.syncView()
	return m
}

// Close cancels the event subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init starts the countdown tick and the event listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.eventList.SetSize(msg.Width-4, max(msg.Height-headerHeight, 3))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.eventList, cmd = m.eventList.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		m.snapshot = m.sess.Snapshot()
		m.syncView()
		return m, m.tick()

	case MsgSessionEvent:
		e := msg.data.(session.Event)
		cmd := m.eventList.InsertItem(0, eventItem{event: e})
		if e.Kind == session.EventSessionEnded {
			m.endReason = e.Reason
		}
		m.snapshot = m.sess.Snapshot()
		m.syncView()
		return m, tea.Batch(cmd, m.waitForEvent())

	case MsgSubscriptionClosed:
		m.events = nil
		return m, nil

	case MsgActionDone:
		res := msg.data.(actionResult)
		m.busy = false
		m.err = res.err
		if res.err == nil {
			m.status = res.action + " done"
		} else {
			m.status = ""
		}
		m.snapshot = m.sess.Snapshot()
		m.syncView()
		return m, nil
	}
	return m, nil
}

// syncView switches to the signed-out view once the snapshot reports no session.
func (m *Model) syncView() {
	if m.snapshot.Authenticated || m.snapshot.State == session.Bootstrapping {
		m.view = SignedInView
		return
	}
	m.view = SignedOutView
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case m.view != SignedInView:
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.runAction("refresh", m.sess.RefreshToken)
	case key.Matches(msg, m.keys.logout):
		return m, m.runAction("logout", m.sess.Logout)
	}

	var cmd tea.Cmd
	m.eventList, cmd = m.eventList.Update(msg)
	return m, cmd
}

// runAction runs fn off the update loop; a second action is ignored while one is in flight.
func (m *Model) runAction(name string, fn func(context.Context) error) tea.Cmd {
	if m.busy {
		return nil
	}
	m.busy = true
	m.err = nil
	m.status = name + "..."

	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg(name, fn(ctx))
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return subscriptionClosedMsg()
		}
		return sessionEventMsg(e)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SignedInView:
		return m.renderSignedIn()
	case SignedOutView:
		return m.renderSignedOut()
	default:
		return ""
	}
}

func (m *Model) renderSignedIn() string {
	snap := m.snapshot
	var b strings.Builder

	b.WriteString(styles.title.Render("Session"))
	b.WriteString("\n")
	m.row(&b, "State", styles.State(snap.State).Render(snap.State.String()))

	if snap.User != nil {
		user := snap.User.Email
		if snap.User.FullName != "" {
			user = fmt.Sprintf("%s <%s>", snap.User.FullName, snap.User.Email)
		}
		m.row(&b, "User", user)
	}
	if len(snap.Roles) > 0 {
		m.row(&b, "Roles", strings.Join(snap.Roles, ", "))
	}
	if snap.ExpiresAt != nil {
		m.row(&b, "Expires", m.renderCountdown(snap.Remaining))
	}

	switch {
	case m.err != nil:
		b.WriteString("\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	case m.status != "":
		b.WriteString("\n" + styles.help.Render(m.status) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.eventList.View())
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderSignedOut() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Signed out"))
	b.WriteString("\n")
	if m.endReason != "" {
		m.row(&b, "Reason", styles.warn.Render(string(m.endReason)))
	}
	b.WriteString("\nRun `podsession auth login` to start a new session.\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *Model) row(b *strings.Builder, label, value string) {
	b.WriteString(styles.label.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func (m *Model) renderCountdown(remaining time.Duration) string {
	text := FormatRemaining(remaining)
	switch {
	case remaining <= 0:
		return styles.err.Render(text)
	case remaining <= m.refreshLead:
		return styles.warn.Render(text)
	default:
		return styles.ok.Render(text)
	}
}

// FormatRemaining renders a countdown rounded to the second.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	return d.Round(time.Second).String()
}
