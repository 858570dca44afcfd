package cli

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"contact-manager/internal/cache"
	"contact-manager/internal/client"
	"contact-manager/internal/config"
	"contact-manager/internal/contactlist"
	"contact-manager/internal/platform/httpclient"
	"contact-manager/internal/platform/logger"
)

// Overrides are flag values that take priority over the environment.
type Overrides struct {
	ServerURL string
	Session   string
	Cache     string
}

// Runtime is everything a command needs.
type Runtime struct {
	Service  *contactlist.Service
	LoginURL string
	Log      *slog.Logger
	close    func() error
}

// Close releases the cache database and log files.
func (r *Runtime) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// Opener builds a Runtime. Tests substitute their own.
type Opener func(ctx context.Context, o Overrides) (*Runtime, error)

// Open builds the Runtime from client configuration.
func Open(ctx context.Context, o Overrides) (*Runtime, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if o.ServerURL != "" {
		cfg.ServerURL = o.ServerURL
	}
	if o.Session != "" {
		cfg.Session = o.Session
	}
	if o.Cache != "" {
		cfg.Cache = o.Cache
	}

	log, closeLog := logger.New(logger.Options{
		Env:          "dev",
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "contacts",
		Console:      os.Stderr,
	})

	var (
		store  cache.Store
		unseen cache.UnseenStore
		db     *sql.DB
	)
	if cfg.Cache == "memory" {
		store, unseen = cache.NewMemoryStore(), cache.NewMemoryUnseen()
	} else {
		s, d, err := cache.Open(ctx, cfg.Cache)
		if err != nil {
			_ = closeLog.Close()
			return nil, err
		}
		store, unseen, db = s, s.Unseen(), d
	}

	hc := httpclient.New(
		httpclient.WithLogger(log.With("component", "http")),
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithRetries(1, 200*time.Millisecond),
		httpclient.WithRetryPolicy(httpclient.RetryTransportOnly),
	)
	c := client.New(hc, cfg.ServerURL, cfg.Session, client.WithLogger(log), client.WithTimeout(cfg.Timeout))

	return &Runtime{
		Service:  contactlist.NewService(c, store, unseen, log),
		LoginURL: c.LoginURL(),
		Log:      log,
		close: func() error {
			var err error
			if db != nil {
				err = db.Close()
			}
			_ = closeLog.Close()
			return err
		},
	}, nil
}
