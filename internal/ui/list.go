package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/podsession/internal/session"
)

var _ list.Item = eventItem{}

// eventItem wraps [session.Event] to implement [list.Item].
type eventItem struct {
	event session.Event
}

func (i eventItem) FilterValue() string { return string(i.event.Kind) }

func (i eventItem) Title() string {
	switch i.event.Kind {
	case session.EventStateChanged:
		return fmt.Sprintf("%s → %s", i.event.From, i.event.To)
	case session.EventSessionEnded:
		return fmt.Sprintf("session ended (%s)", i.event.Reason)
	default:
		return string(i.event.Kind)
	}
}

func (i eventItem) Description() string {
	desc := i.event.At.Format(time.TimeOnly)
	if i.event.Email != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.event.Email)
	}
	return desc
}
