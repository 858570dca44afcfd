package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"
)

// TestDB - тестовая база с хелперами.
type TestDB struct {
	DB       *sql.DB
	TxRunner *TxRunner
}

// NewTestDBInMemory создаёт in-memory базу, закрываемую через t.Cleanup.
func NewTestDBInMemory(t testing.TB) *TestDB {
	t.Helper()

	db, err := NewInMemoryDB(context.Background())
	if err != nil {
		t.Fatalf("Failed to create in-memory test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &TestDB{DB: db, TxRunner: NewTxRunner(db)}
}

// NewTestDBFile создаёт файловую базу во временном каталоге теста.
func NewTestDBFile(t testing.TB) (*TestDB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to create file test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &TestDB{DB: db, TxRunner: NewTxRunner(db)}, path
}

// Migrate применяет миграции из fsys/dir или валит тест.
func (tdb *TestDB) Migrate(t testing.TB, fsys fs.FS, dir string) {
	t.Helper()

	if err := ApplyMigrationsFromFS(tdb.DB, fsys, dir); err != nil {
		t.Fatalf("Failed to apply test migrations: %v", err)
	}
}

// Exec выполняет SQL и валит тест при ошибке.
func (tdb *TestDB) Exec(t testing.TB, query string, args ...any) {
	t.Helper()

	if _, err := tdb.DB.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("Failed to exec query %q: %v", query, err)
	}
}

// CountRows возвращает число строк в таблице.
func (tdb *TestDB) CountRows(t testing.TB, table string) int {
	t.Helper()

	var n int
	if err := tdb.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}
	return n
}

// TableExists сообщает, есть ли таблица в схеме.
func (tdb *TestDB) TableExists(t testing.TB, table string) bool {
	t.Helper()

	var n int
	err := tdb.DB.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to check table %s: %v", table, err)
	}
	return n > 0
}
