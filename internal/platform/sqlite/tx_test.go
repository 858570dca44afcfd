package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxRunner_CommitAndRollback(t *testing.T) {
	tdb := NewTestDBInMemory(t)
	tdb.Exec(t, "CREATE TABLE items (name TEXT)")
	ctx := context.Background()

	err := tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		_, err := tdb.TxRunner.Querier(ctx).ExecContext(ctx, "INSERT INTO items VALUES ('kept')")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := tdb.TxRunner.Querier(ctx).ExecContext(ctx, "INSERT INTO items VALUES ('dropped')"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, tdb.CountRows(t, "items"))
}

func TestTxRunner_Nested(t *testing.T) {
	tdb := NewTestDBInMemory(t)

	err := tdb.TxRunner.WithinTx(context.Background(), func(ctx context.Context) error {
		return tdb.TxRunner.WithinTx(ctx, func(context.Context) error { return nil })
	})
	assert.ErrorIs(t, err, ErrNestedTx)
}

func TestTxRunner_QuerierOutsideTx(t *testing.T) {
	tdb := NewTestDBInMemory(t)

	_, ok := SqlTx(context.Background())
	assert.False(t, ok)
	assert.Equal(t, tdb.DB, tdb.TxRunner.Querier(context.Background()))
}

func TestIsBusyError(t *testing.T) {
	assert.True(t, isBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isBusyError(errors.New("database table is locked")))
	assert.False(t, isBusyError(errors.New("no such table")))
	assert.False(t, isBusyError(nil))
}

func TestTxRunner_RetriesBusy(t *testing.T) {
	tdb := NewTestDBInMemory(t)
	tdb.TxRunner.Retry.InitialDelay = 0

	calls := 0
	err := tdb.TxRunner.WithinTx(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
