package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contact-manager/internal/contact"
	"contact-manager/internal/platform/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the cache schema of db up to date.
func Migrate(db *sql.DB) error {
	return sqlite.ApplyMigrationsFromFS(db, migrations, "migrations")
}

// SQLiteStore persists the contact set and the unseen names in one SQLite file.
type SQLiteStore struct {
	tx  *sqlite.TxRunner
	now func() time.Time
}

// NewSQLiteStore wraps a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{tx: sqlite.NewTxRunner(db), now: time.Now}
}

// Open opens the cache file at path and migrates it.
func Open(ctx context.Context, path string) (*SQLiteStore, *sql.DB, error) {
	db, err := sqlite.NewDB(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return NewSQLiteStore(db), db, nil
}

func (s *SQLiteStore) Get(ctx context.Context) ([]contact.Contact, bool, error) {
	var out []contact.Contact
	present := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		var storedAt string
		err := q.QueryRowContext(ctx, `SELECT stored_at FROM contact_set WHERE id = 1`).Scan(&storedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read contact set marker: %w", err)
		}
		present = true

		rows, err := q.QueryContext(ctx, `SELECT payload FROM contacts ORDER BY position`)
		if err != nil {
			return fmt.Errorf("read contacts: %w", err)
		}
		defer rows.Close()
		out = []contact.Contact{}
		for rows.Next() {
			var payload string
			if err := rows.Scan(&payload); err != nil {
				return err
			}
			var c contact.Contact
			if err := json.Unmarshal([]byte(payload), &c); err != nil {
				return fmt.Errorf("decode cached contact: %w", err)
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, false, err
	}
	return out, present, nil
}

func (s *SQLiteStore) Set(ctx context.Context, contacts []contact.Contact) error {
	payloads := make([]string, len(contacts))
	for i, c := range contacts {
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode contact %d: %w", i, err)
		}
		payloads[i] = string(b)
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		if _, err := q.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
			return fmt.Errorf("clear contacts: %w", err)
		}
		for i, p := range payloads {
			if _, err := q.ExecContext(ctx, `INSERT INTO contacts (position, payload) VALUES (?, ?)`, i, p); err != nil {
				return fmt.Errorf("insert contact %d: %w", i, err)
			}
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO contact_set (id, stored_at) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET stored_at = excluded.stored_at`,
			s.now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("mark contact set: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		if _, err := q.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
			return fmt.Errorf("clear contacts: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM contact_set`); err != nil {
			return fmt.Errorf("clear contact set marker: %w", err)
		}
		return nil
	})
}

// Unseen returns the unseen-names view backed by the same database.
func (s *SQLiteStore) Unseen() *SQLiteUnseen {
	return &SQLiteUnseen{tx: s.tx, now: s.now}
}

// SQLiteUnseen is an UnseenStore in the cache database.
type SQLiteUnseen struct {
	tx  *sqlite.TxRunner
	now func() time.Time
}

func (u *SQLiteUnseen) Add(ctx context.Context, name string) error {
	_, err := u.tx.Querier(ctx).ExecContext(ctx,
		`INSERT INTO unseen_names (name, added_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, u.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add unseen name: %w", err)
	}
	return nil
}

func (u *SQLiteUnseen) List(ctx context.Context) ([]string, error) {
	rows, err := u.tx.Querier(ctx).QueryContext(ctx, `SELECT name FROM unseen_names ORDER BY added_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list unseen names: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (u *SQLiteUnseen) Remove(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	return u.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := u.tx.Querier(ctx)
		for _, n := range names {
			if _, err := q.ExecContext(ctx, `DELETE FROM unseen_names WHERE name = ?`, n); err != nil {
				return fmt.Errorf("remove unseen name: %w", err)
			}
		}
		return nil
	})
}

func (u *SQLiteUnseen) Clear(ctx context.Context) error {
	if _, err := u.tx.Querier(ctx).ExecContext(ctx, `DELETE FROM unseen_names`); err != nil {
		return fmt.Errorf("clear unseen names: %w", err)
	}
	return nil
}
