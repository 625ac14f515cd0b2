package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(shared.MemoryDatabase)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestCredentialRepository(t *testing.T) {
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Load Empty", func(t *testing.T) {
		repo := NewCredentialRepository(setupTestDB(t))

		_, err := repo.Load()
		if !errors.Is(err, shared.ErrNoCredential) {
			t.Errorf("expected ErrNoCredential, got %v", err)
		}
	})

	t.Run("Save And Load", func(t *testing.T) {
		repo := NewCredentialRepository(setupTestDB(t))
		cred := &models.Credential{AccessToken: "token-1", ExpiresAt: expiry, Roles: []string{"listener", "subscriber"}}

		if err := repo.Save(cred); err != nil {
			t.Fatalf("failed to save credential: %v", err)
		}

		loaded, err := repo.Load()
		if err != nil {
			t.Fatalf("failed to load credential: %v", err)
		}

		if loaded.AccessToken != "token-1" {
			t.Errorf("expected token-1, got %s", loaded.AccessToken)
		}
		if !loaded.ExpiresAt.Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, loaded.ExpiresAt)
		}
		if len(loaded.Roles) != 2 || loaded.Roles[1] != "subscriber" {
			t.Errorf("expected roles to round trip in order, got %v", loaded.Roles)
		}
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewCredentialRepository(db)

		_ = repo.Save(&models.Credential{AccessToken: "old", ExpiresAt: expiry})
		if err := repo.Save(&models.Credential{AccessToken: "new", ExpiresAt: expiry.Add(time.Hour)}); err != nil {
			t.Fatalf("failed to overwrite credential: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&count); err != nil {
			t.Fatalf("failed to count credentials: %v", err)
		}
		if count != 1 {
			t.Errorf("expected exactly one credential row, got %d", count)
		}

		loaded, _ := repo.Load()
		if loaded.AccessToken != "new" {
			t.Errorf("expected overwritten token, got %s", loaded.AccessToken)
		}
		if loaded.Roles != nil && len(loaded.Roles) != 0 {
			t.Errorf("expected empty roles, got %v", loaded.Roles)
		}
	})

	t.Run("Save Rejects Incomplete", func(t *testing.T) {
		repo := NewCredentialRepository(setupTestDB(t))

		if err := repo.Save(&models.Credential{AccessToken: "no-expiry"}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := repo.Load(); !errors.Is(err, shared.ErrNoCredential) {
			t.Error("incomplete credential must not be written")
		}
	})

	t.Run("Corrupt Row Is Discarded", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewCredentialRepository(db)

		if _, err := db.Exec(`INSERT INTO credentials (id, access_token, expires_at, roles) VALUES (1, 'tok', 'not-a-date', '[]')`); err != nil {
			t.Fatalf("failed to insert corrupt row: %v", err)
		}

		if _, err := repo.Load(); !errors.Is(err, shared.ErrNoCredential) {
			t.Errorf("expected ErrNoCredential, got %v", err)
		}

		var count int
		_ = db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&count)
		if count != 0 {
			t.Errorf("corrupt row should be deleted, found %d", count)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := NewCredentialRepository(setupTestDB(t))
		_ = repo.Save(&models.Credential{AccessToken: "tok", ExpiresAt: expiry})

		if err := repo.Clear(); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if err := repo.Clear(); err != nil {
			t.Errorf("clearing twice should succeed, got %v", err)
		}
		if _, err := repo.Load(); !errors.Is(err, shared.ErrNoCredential) {
			t.Errorf("expected ErrNoCredential after clear, got %v", err)
		}
	})

	t.Run("TokenSource", func(t *testing.T) {
		repo := NewCredentialRepository(setupTestDB(t))
		ts := repo.TokenSource()

		if _, err := ts.Token(); !errors.Is(err, shared.ErrNoCredential) {
			t.Errorf("expected ErrNoCredential from empty source, got %v", err)
		}

		_ = repo.Save(&models.Credential{AccessToken: "bearer-me", ExpiresAt: expiry})
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok.AccessToken != "bearer-me" || tok.Type() != "Bearer" {
			t.Errorf("unexpected token %+v", tok)
		}
	})
}

func TestEventRepository(t *testing.T) {
	t.Run("Record Assigns ID And Sequence", func(t *testing.T) {
		repo := NewEventRepository(setupTestDB(t))

		first := &models.SessionEvent{Kind: "session_started", Email: "user@test.com"}
		second := &models.SessionEvent{Kind: "session_ended", Reason: "logout"}

		if err := repo.Record(first); err != nil {
			t.Fatalf("failed to record event: %v", err)
		}
		if err := repo.Record(second); err != nil {
			t.Fatalf("failed to record event: %v", err)
		}

		if first.ID == "" || first.ID == second.ID {
			t.Errorf("expected distinct generated IDs, got %q and %q", first.ID, second.ID)
		}
		if second.Sequence != first.Sequence+1 {
			t.Errorf("expected consecutive sequences, got %d then %d", first.Sequence, second.Sequence)
		}
		if first.CreatedAt.IsZero() {
			t.Error("CreatedAt should be filled")
		}
	})

	t.Run("Record Requires Kind", func(t *testing.T) {
		repo := NewEventRepository(setupTestDB(t))
		if err := repo.Record(&models.SessionEvent{}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("List Newest First", func(t *testing.T) {
		repo := NewEventRepository(setupTestDB(t))
		for _, kind := range []string{"a", "b", "c"} {
			if err := repo.Record(&models.SessionEvent{Kind: kind}); err != nil {
				t.Fatalf("failed to record %s: %v", kind, err)
			}
		}

		events, err := repo.List(2)
		if err != nil {
			t.Fatalf("failed to list events: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].Kind != "c" || events[1].Kind != "b" {
			t.Errorf("expected c, b; got %s, %s", events[0].Kind, events[1].Kind)
		}

		all, _ := repo.List(0)
		if len(all) != 3 {
			t.Errorf("expected all 3 events with no limit, got %d", len(all))
		}
	})

	t.Run("Prune", func(t *testing.T) {
		repo := NewEventRepository(setupTestDB(t))
		for i := 0; i < 5; i++ {
			_ = repo.Record(&models.SessionEvent{Kind: "state_changed"})
		}

		removed, err := repo.Prune(2)
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}
		if removed != 3 {
			t.Errorf("expected 3 removed, got %d", removed)
		}

		remaining, _ := repo.List(0)
		if len(remaining) != 2 || remaining[0].Sequence != 5 {
			t.Errorf("expected newest two to remain, got %+v", remaining)
		}
	})
}
