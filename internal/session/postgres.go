package session

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contact-manager/internal/platform/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the sessions schema to the database at dsn.
func Migrate(dsn string) (pg.MigrationInfo, error) {
	return pg.ApplyMigrationsFromFS(dsn, migrations, "migrations")
}

// PostgresStore keeps sessions in the sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
	tx   *pg.TxRunner
}

// NewPostgresStore wraps an open pool. Run Migrate first.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, tx: pg.NewTxRunner(pool)}
}

func (p *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	var (
		s      Session
		expiry *time.Time
	)
	err := p.tx.Querier(ctx).QueryRow(ctx, `
		SELECT id, access_token, refresh_token, token_expiry, expires_at, created_at, updated_at
		FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.Tokens.AccessToken, &s.Tokens.RefreshToken, &expiry, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if expiry != nil {
		s.Tokens.Expiry = *expiry
	}
	return s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s Session) error {
	var expiry *time.Time
	if !s.Tokens.Expiry.IsZero() {
		expiry = &s.Tokens.Expiry
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	_, err := p.tx.Querier(ctx).Exec(ctx, `
		INSERT INTO sessions (id, access_token, refresh_token, token_expiry, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry  = EXCLUDED.token_expiry,
			expires_at    = EXCLUDED.expires_at,
			updated_at    = EXCLUDED.updated_at`,
		s.ID, s.Tokens.AccessToken, s.Tokens.RefreshToken, expiry, s.ExpiresAt, s.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.tx.Querier(ctx).Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.tx.Querier(ctx).Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Update loads the session, applies fn and saves the result in one transaction.
// The row stays locked until commit, so concurrent token rotations serialize.
func (p *PostgresStore) Update(ctx context.Context, id string, fn func(*Session) error) error {
	return p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := p.tx.Querier(ctx).Exec(ctx, `SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		s, err := p.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&s); err != nil {
			return err
		}
		return p.Save(ctx, s)
	})
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return pg.HealthCheckPool(ctx, p.pool)
}
