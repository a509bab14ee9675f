package credstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/byte4ever/codepublish/gitsync/git"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the schema to the database at dbURL. An up
// to date schema is not an error.
func Migrate(dbURL string) error {
	const errCtx = "migrating credential store"

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("%s: source: %w", errCtx, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn(
				"closing migrator",
				"source", srcErr,
				"database", dbErr,
			)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// PostgresStore is a Store backed by the organizations table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const (
	selectOrganization = `SELECT id, provider, installation_id, name, credential, updated_at
FROM organizations WHERE id = $1`

	upsertOrganization = `INSERT INTO organizations
    (id, provider, installation_id, name, credential, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
    provider = EXCLUDED.provider,
    installation_id = EXCLUDED.installation_id,
    name = EXCLUDED.name,
    credential = EXCLUDED.credential,
    updated_at = now()`

	deleteOrganization = `DELETE FROM organizations WHERE id = $1`
)

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Organization, error) {
	const errCtx = "getting organization"

	var (
		o        Organization
		provider string
		cred     []byte
	)

	err := s.pool.QueryRow(ctx, selectOrganization, id).Scan(
		&o.ID, &provider, &o.InstallationID, &o.Name, &cred, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %q: %w", errCtx, id, git.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", errCtx, id, err)
	}

	o.Provider = git.Kind(provider)

	if err := json.Unmarshal(cred, &o.Credential); err != nil {
		return nil, fmt.Errorf("%s %q: credential: %w", errCtx, id, err)
	}

	return &o, nil
}

// Save implements Store as an upsert.
func (s *PostgresStore) Save(ctx context.Context, org Organization) error {
	const errCtx = "saving organization"

	if org.ID == "" {
		return fmt.Errorf("%s: empty id: %w", errCtx, git.ErrConfiguration)
	}

	cred, err := json.Marshal(org.Credential)
	if err != nil {
		return fmt.Errorf("%s %q: credential: %w", errCtx, org.ID, err)
	}

	if _, err := s.pool.Exec(
		ctx, upsertOrganization,
		org.ID, string(org.Provider), org.InstallationID, org.Name, cred,
	); err != nil {
		return fmt.Errorf("%s %q: %w", errCtx, org.ID, err)
	}

	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const errCtx = "deleting organization"

	if _, err := s.pool.Exec(ctx, deleteOrganization, id); err != nil {
		return fmt.Errorf("%s %q: %w", errCtx, id, err)
	}

	return nil
}
