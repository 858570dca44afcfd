// Package sqlite - инфраструктура SQLite для локального кэша контактов.
//
// Открытие файловой базы и применение встроенных миграций:
//
//	db, err := sqlite.NewDB(ctx, "data/contacts.db")
//	if err != nil {
//		return err
//	}
//	if err := sqlite.ApplyMigrationsFromFS(db, migrations, "migrations"); err != nil {
//		return err
//	}
//
// Запись в транзакции (SQLITE_BUSY повторяется автоматически):
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		_, err := runner.Querier(ctx).ExecContext(ctx, "DELETE FROM contacts")
//		return err
//	})
//
// В тестах используйте NewTestDBInMemory: база закрывается через t.Cleanup.
package sqlite
