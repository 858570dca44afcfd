package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WaitStrategy - стратегия роста паузы между попытками подключения.
type WaitStrategy int

const (
	LinearWait WaitStrategy = iota
	ExponentialWait
)

// HealthCheckOptions настраивает ожидание БД при старте.
type HealthCheckOptions struct {
	// MaxRetries: 0 - пробовать до отмены контекста.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Strategy        WaitStrategy
	PingTimeout     time.Duration
}

// DefaultHealthCheckOptions возвращает опции по умолчанию.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Strategy:        ExponentialWait,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB ждёт, пока БД по dsn начнёт отвечать на пинг.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	interval := opts.InitialInterval
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled while waiting for database: %w", err)
		}

		err := pingDatabase(ctx, dsn, opts.PingTimeout)
		if err == nil {
			return nil
		}
		if opts.MaxRetries > 0 && attempt >= opts.MaxRetries {
			return fmt.Errorf("database not available after %d attempts: %w", attempt, err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
		interval = calculateNextInterval(interval, opts)
	}
}

// HealthCheckPool проверяет живой пул: пинг и SELECT 1.
// Используется обработчиком /healthz.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pool ping failed: %w", err)
	}
	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}
	return nil
}

func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func calculateNextInterval(current time.Duration, opts HealthCheckOptions) time.Duration {
	var next time.Duration
	switch opts.Strategy {
	case LinearWait:
		next = current + opts.InitialInterval
	case ExponentialWait:
		next = current * 2
	default:
		return opts.InitialInterval
	}
	if next > opts.MaxInterval {
		return opts.MaxInterval
	}
	return next
}
