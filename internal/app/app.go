package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"contact-manager/internal/adapter/external/idp"
	"contact-manager/internal/adapter/httpapi"
	"contact-manager/internal/adapter/scheduler"
	"contact-manager/internal/config"
	"contact-manager/internal/platform/httpclient"
	"contact-manager/internal/platform/logger"
	"contact-manager/internal/platform/metrics"
	"contact-manager/internal/platform/pg"
	"contact-manager/internal/proxy"
	"contact-manager/internal/session"
	"contact-manager/internal/token"
	"contact-manager/pkg/retry"
)

// App wires the proxy server components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog io.Closer
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, closeLog := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "contacts-proxy",
	})
	return &App{cfg: cfg, log: log, closeLog: closeLog}, nil
}

// Run starts the HTTP server and the sweep job and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	defer func() { _ = a.closeLog.Close() }()
	a.log.Info("starting", "addr", a.cfg.HTTP.Addr, "session_store", a.cfg.Session.Store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("contacts", reg)

	store, closeStore, err := a.openSessionStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	idpHTTP := httpclient.New(
		httpclient.WithLogger(a.log.With("component", "idp")),
		httpclient.WithURLRedactor(idp.RedactURL),
	)
	idpClient := idp.New(idpHTTP, idp.Config{
		IssuerURL:    a.cfg.IDP.IssuerURL,
		ClientID:     a.cfg.IDP.ClientID,
		ClientSecret: a.cfg.IDP.ClientSecret,
		RedirectURL:  a.cfg.IDP.RedirectURL,
		Audience:     a.cfg.IDP.Audience,
	}, retry.DefaultConfig())

	acquirer := token.NewSessionAcquirer(store, idpClient,
		token.WithLogger(a.log.With("component", "token")),
		token.WithRefreshHook(func(outcome string) { m.TokenRefreshes.WithLabelValues(outcome).Inc() }),
	)

	upstreamHTTP := httpclient.New(
		httpclient.WithLogger(a.log.With("component", "upstream")),
		httpclient.WithRetries(2, 100*time.Millisecond),
		httpclient.WithRetryPolicy(httpclient.RetryTransportOnly),
		httpclient.WithMaxRetryDuration(5*time.Second),
	)
	px := proxy.New(upstreamHTTP, a.cfg.ResourceServerURL, acquirer,
		proxy.WithLogger(a.log.With("component", "proxy")),
		proxy.WithMetrics(m),
	)

	limiter := httpapi.NewRateLimiter(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst)
	if a.cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Proxy:    px,
		Auth:     idpClient,
		Sessions: store,
		Cookies: session.NewCookies([]byte(a.cfg.Session.Secret), session.CookieOptions{
			MaxAge: a.cfg.Session.TTL,
			Secure: a.cfg.Session.CookieSecure,
		}),
		Limiter:    limiter,
		Metrics:    m,
		Gatherer:   reg,
		Log:        a.log.With("component", "http"),
		SessionTTL: a.cfg.Session.TTL,
		PublicURL:  a.cfg.HTTP.PublicURL,
	})

	sched := scheduler.New(ctx, scheduler.Config{
		Logger: a.log.With("component", "scheduler"),
		JobHooks: scheduler.JobHooks{OnJobFinish: func(name string, d time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.JobDuration.WithLabelValues(name, result).Observe(d.Seconds())
		}},
	})
	if _, err := sched.AddJob(a.cfg.Session.SweepSchedule, sweepJob(store, limiter, m, a.log), scheduler.JobOptions{
		Name:          "session-sweep",
		Timeout:       time.Minute,
		OverlapPolicy: scheduler.SkipIfRunning,
	}); err != nil {
		return err
	}
	sched.Start()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.log.Error("server", slog.Any("err", runErr))
	}
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) openSessionStore(ctx context.Context) (session.Store, func(), error) {
	if a.cfg.Session.Store != "postgres" {
		return session.NewMemoryStore(), func() {}, nil
	}
	dsn := a.cfg.Session.DatabaseURL
	if err := pg.WaitForDB(ctx, dsn, pg.DefaultHealthCheckOptions()); err != nil {
		return nil, nil, fmt.Errorf("wait for database: %w", err)
	}
	info, err := session.Migrate(dsn)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("session schema ready", "version", info.FinalVersion, "applied", info.Applied)

	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return session.NewPostgresStore(pool), pool.Close, nil
}

// sweepJob deletes expired sessions and forgets idle rate limiters.
func sweepJob(store session.Store, limiter *httpapi.RateLimiter, m *metrics.Metrics, log *slog.Logger) scheduler.JobFunc {
	return func(ctx context.Context) error {
		n, err := store.DeleteExpired(ctx, time.Now())
		if err != nil {
			return err
		}
		m.SessionsSwept.Add(float64(n))
		dropped := limiter.Sweep(30 * time.Minute)
		if n > 0 || dropped > 0 {
			log.Info("sweep finished", "sessions", n, "limiters", dropped)
		}
		return nil
	}
}
