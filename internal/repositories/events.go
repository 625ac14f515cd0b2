package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/shared"
)

// EventRepository stores the session lifecycle history.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new [EventRepository] with the given database connection
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record inserts e with a generated ID and sequence, filling CreatedAt when unset.
// e is only updated once the insert commits.
func (r *EventRepository) Record(e *models.SessionEvent) error {
	if e.Kind == "" {
		return fmt.Errorf("%w: event kind is required", shared.ErrInvalidArgument)
	}

	id := shared.GenerateID()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var sequence int
	err := inTx(r.db, func(tx *sql.Tx) error {
		var err error
		if sequence, err = nextSequence(tx, "session_events"); err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO session_events (id, sequence, kind, from_state, to_state, reason, email, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, sequence, e.Kind, e.From, e.To, e.Reason, e.Email, createdAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.ID, e.Sequence, e.CreatedAt = id, sequence, createdAt
	return nil
}

// List returns up to limit events, newest first. A non-positive limit returns everything.
func (r *EventRepository) List(limit int) ([]*models.SessionEvent, error) {
	query := `
		SELECT id, sequence, kind, from_state, to_state, reason, email, created_at
		FROM session_events
		ORDER BY sequence DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.SessionEvent
	for rows.Next() {
		var e models.SessionEvent
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Kind, &e.From, &e.To, &e.Reason, &e.Email, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return events, nil
}

// Prune deletes all but the newest keep events and returns how many were removed.
func (r *EventRepository) Prune(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	result, err := r.db.Exec(`
		DELETE FROM session_events
		WHERE sequence NOT IN (SELECT sequence FROM session_events ORDER BY sequence DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}
