package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc - функция фоновой задачи.
type JobFunc func(ctx context.Context) error

// JobID - идентификатор задачи в планировщике.
type JobID = cron.EntryID

// OverlapPolicy определяет, что делать, если предыдущий запуск ещё не завершён.
type OverlapPolicy int

const (
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning пропускает запуск, пока предыдущий не завершился.
	SkipIfRunning
	// DelayIfRunning ставит запуск в очередь за предыдущим.
	DelayIfRunning
)

// JobOptions настраивает задачу.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks - необязательные хуки для метрик.
type JobHooks struct {
	OnJobFinish func(name string, duration time.Duration, err error)
}

// Config содержит зависимости планировщика.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// Scheduler запускает задачи по cron-расписанию (с секундами) и
// останавливается вместе с родительским контекстом.
type Scheduler struct {
	cron      *cron.Cron
	logger    *slog.Logger
	hooks     JobHooks
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// cronLogger перенаправляет логи cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.logger.Debug(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, kv...)...)
}

// New создаёт планировщик, привязанный к parent.
func New(parent context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		logger: logger,
		hooks:  cfg.JobHooks,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// AddJob регистрирует задачу. Расписание понимает поле секунд и
// дескрипторы вида "@every 5m".
func (s *Scheduler) AddJob(schedule string, job JobFunc, opts JobOptions) (JobID, error) {
	var wrappers []cron.JobWrapper
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		wrappers = append(wrappers, cron.SkipIfStillRunning(cronLogger{logger: s.logger}))
	case DelayIfRunning:
		wrappers = append(wrappers, cron.DelayIfStillRunning(cronLogger{logger: s.logger}))
	}

	id, err := s.cron.AddJob(schedule, cron.NewChain(wrappers...).Then(cron.FuncJob(func() {
		s.run(job, opts)
	})))
	if err != nil {
		return 0, fmt.Errorf("add job %q with schedule %q: %w", opts.Name, schedule, err)
	}
	s.logger.Info("job added", "name", opts.Name, "schedule", schedule, "id", id)
	return id, nil
}

// Start запускает планировщик; повторные вызовы ничего не делают.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop отменяет контекст задач и ждёт их завершения, но не дольше ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	go s.stopOnce.Do(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	close(s.done)
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(job JobFunc, opts JobOptions) {
	name := opts.Name
	if name == "" {
		name = "unnamed"
	}

	ctx := s.ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		dur := time.Since(start)
		if s.hooks.OnJobFinish != nil {
			s.hooks.OnJobFinish(name, dur, err)
		}
		if err != nil {
			s.logger.Error("job failed", "name", name, "error", err, "duration", dur)
			return
		}
		s.logger.Debug("job completed", "name", name, "duration", dur)
	}()
	err = job(ctx)
}
