// Package scheduler запускает фоновые задачи прокси по cron-расписанию
// (github.com/robfig/cron/v3), например очистку просроченных сессий.
//
//	s := scheduler.New(ctx, scheduler.Config{Logger: log})
//	_, err := s.AddJob("@every 5m", store.DeleteExpired, scheduler.JobOptions{
//		Name:          "session-sweep",
//		Timeout:       30 * time.Second,
//		OverlapPolicy: scheduler.SkipIfRunning,
//	})
//	s.Start()
//	defer s.Stop(shutdownCtx)
//
// Ошибки и паники задач логируются и передаются в JobHooks.OnJobFinish,
// планировщик при этом продолжает работу.
package scheduler
