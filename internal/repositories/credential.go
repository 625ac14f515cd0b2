package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/shared"
	"golang.org/x/oauth2"
)

// CredentialRepository persists the one [models.Credential] the client holds.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save replaces any stored credential with c.
//
// Incomplete credentials are rejected before touching storage.
func (r *CredentialRepository) Save(c *models.Credential) error {
	if !c.Complete() {
		return fmt.Errorf("%w: refusing to store incomplete credential", shared.ErrInvalidArgument)
	}

	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to encode roles: %w", err)
	}

	query := `
		INSERT INTO credentials (id, access_token, expires_at, roles, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			roles = excluded.roles,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query, c.AccessToken, c.ExpiresAt.UTC().Format(time.RFC3339Nano), string(rolesJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	return nil
}

// Load returns the stored credential or [shared.ErrNoCredential].
//
// A row that cannot be decoded into a complete credential is deleted and reported as absent.
func (r *CredentialRepository) Load() (*models.Credential, error) {
	var (
		token     string
		expiresAt string
		rolesJSON string
	)

	err := r.db.QueryRow(`SELECT access_token, expires_at, roles FROM credentials WHERE id = 1`).Scan(&token, &expiresAt, &rolesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}

	cred, decodeErr := decodeCredential(token, expiresAt, rolesJSON)
	if decodeErr != nil {
		if err := r.Clear(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: discarded corrupt credential: %v", shared.ErrNoCredential, decodeErr)
	}

	return cred, nil
}

// Clear deletes the stored credential. Clearing an empty store is not an error.
func (r *CredentialRepository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// TokenSource exposes the stored credential as a read-only [oauth2.TokenSource].
func (r *CredentialRepository) TokenSource() oauth2.TokenSource {
	return storeTokenSource{repo: r}
}

type storeTokenSource struct {
	repo *CredentialRepository
}

func (s storeTokenSource) Token() (*oauth2.Token, error) {
	cred, err := s.repo.Load()
	if err != nil {
		return nil, err
	}
	return cred.Token(), nil
}

func decodeCredential(token, expiresAt, rolesJSON string) (*models.Credential, error) {
	if token == "" {
		return nil, fmt.Errorf("empty access token")
	}

	expiry, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry %q: %w", expiresAt, err)
	}

	var roles []string
	if rolesJSON != "" {
		if err := json.Unmarshal([]byte(rolesJSON), &roles); err != nil {
			return nil, fmt.Errorf("invalid roles: %w", err)
		}
	}

	return &models.Credential{AccessToken: token, ExpiresAt: expiry, Roles: roles}, nil
}
