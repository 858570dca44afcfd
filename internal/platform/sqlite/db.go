package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TxLockMode - режим блокировки, с которым драйвер открывает транзакции.
type TxLockMode string

const (
	TxLockDeferred TxLockMode = "deferred"
	// TxLockImmediate сразу берёт RESERVED блокировку, чтобы запись не получала SQLITE_BUSY посреди транзакции.
	TxLockImmediate TxLockMode = "immediate"
	TxLockExclusive TxLockMode = "exclusive"
)

// DBOptions содержит настройки SQLite базы.
type DBOptions struct {
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	PingTimeout     time.Duration
	WALMode         bool
	ForeignKeys     bool
	BusyTimeout     time.Duration
	TxLockMode      TxLockMode
}

// DefaultDBOptions возвращает настройки для кэша одного клиента:
// один писатель, короткие транзакции замены набора.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
		TxLockMode:      TxLockImmediate,
	}
}

// NewDB открывает файловую базу с настройками по умолчанию.
// Каталог файла создаётся при необходимости.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewInMemoryDB открывает in-memory базу. Пул ограничен одним соединением,
// иначе каждое соединение получило бы свою пустую базу.
func NewInMemoryDB(ctx context.Context) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnMaxLifetime = 0
	opts.ConnMaxIdleTime = 0
	return NewDBWithOptions(ctx, ":memory:", opts)
}

// NewDBWithOptions открывает базу и проверяет соединение пингом.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

// buildDSN кладёт PRAGMA в DSN (формат modernc.org/sqlite), чтобы они
// применялись к каждому новому соединению пула, а не только к первому.
func buildDSN(dbPath string, opts DBOptions) string {
	q := url.Values{}
	if opts.ForeignKeys {
		q.Add("_pragma", "foreign_keys(1)")
	}
	if opts.WALMode {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	if opts.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.TxLockMode != "" && opts.TxLockMode != TxLockDeferred {
		q.Set("_txlock", string(opts.TxLockMode))
	}
	if len(q) == 0 {
		return dbPath
	}
	return dbPath + "?" + q.Encode()
}
