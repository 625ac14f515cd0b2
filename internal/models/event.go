package models

import "time"

// SessionEvent is a persisted record of a session lifecycle event.
type SessionEvent struct {
	ID        string    `json:"id"`
	Sequence  int       `json:"sequence"`
	Kind      string    `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
