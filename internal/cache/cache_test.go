package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-manager/internal/contact"
	"contact-manager/internal/platform/sqlite"
)

func newSQLite(t *testing.T) (*SQLiteStore, *sqlite.TestDB) {
	t.Helper()
	tdb := sqlite.NewTestDBInMemory(t)
	tdb.Migrate(t, migrations, "migrations")
	return NewSQLiteStore(tdb.DB), tdb
}

func stores(t *testing.T) map[string]Store {
	s, _ := newSQLite(t)
	return map[string]Store{"memory": NewMemoryStore(), "sqlite": s}
}

func sample() []contact.Contact {
	return []contact.Contact{
		{ID: "1", Name: "Ann", Phone: "111"},
		{ID: "2", Name: "anna", Phone: "222", Email: "anna@example.com"},
		{ID: "3", Name: "Bob", Phone: "333"},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, ok, err := s.Get(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, got)

			require.NoError(t, s.Set(ctx, sample()))
			got, ok, err = s.Get(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, sample(), got, "order and fields preserved")

			replacement := []contact.Contact{{ID: "9", Name: "Zed", Phone: "9"}}
			require.NoError(t, s.Set(ctx, replacement))
			got, _, err = s.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, replacement, got, "set replaces, never merges")

			require.NoError(t, s.Set(ctx, nil))
			got, ok, err = s.Get(ctx)
			require.NoError(t, err)
			assert.True(t, ok, "empty set is still present")
			assert.Empty(t, got)

			require.NoError(t, s.Clear(ctx))
			require.NoError(t, s.Clear(ctx), "clear is idempotent")
			_, ok, err = s.Get(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryStore_DoesNotAlias(t *testing.T) {
	s := NewMemoryStore()
	in := sample()
	require.NoError(t, s.Set(context.Background(), in))
	in[0].Name = "changed"

	got, _, _ := s.Get(context.Background())
	assert.Equal(t, "Ann", got[0].Name)
	got[1].Name = "changed too"
	again, _, _ := s.Get(context.Background())
	assert.Equal(t, "anna", again[1].Name)
}

func TestStore_ConcurrentSetNeverInterleaves(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a := []contact.Contact{{Name: "a1", Phone: "1"}, {Name: "a2", Phone: "2"}}
			b := []contact.Contact{{Name: "b1", Phone: "1"}, {Name: "b2", Phone: "2"}, {Name: "b3", Phone: "3"}}

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func() { defer wg.Done(); assert.NoError(t, s.Set(context.Background(), a)) }()
				go func() { defer wg.Done(); assert.NoError(t, s.Set(context.Background(), b)) }()
			}
			wg.Wait()

			got, ok, err := s.Get(context.Background())
			require.NoError(t, err)
			require.True(t, ok)
			if len(got) == len(a) {
				assert.Equal(t, a, got)
			} else {
				assert.Equal(t, b, got)
			}
		})
	}
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	path := t.TempDir() + "/cache.db"
	ctx := context.Background()

	s, db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, sample()))
	require.NoError(t, s.Unseen().Add(ctx, "Ann"))
	require.NoError(t, db.Close())

	s, db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	got, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample(), got)
	names, err := s.Unseen().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann"}, names)
}

func TestSQLiteStore_NumericIDRoundTrip(t *testing.T) {
	s, tdb := newSQLite(t)
	tdb.Exec(t, `INSERT INTO contacts (position, payload) VALUES (0, '{"id":42,"name":"Ann","phone":"1"}')`)
	tdb.Exec(t, `INSERT INTO contact_set (id, stored_at) VALUES (1, '2024-01-01T00:00:00Z')`)

	got, ok, err := s.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, contact.ID("42"), got[0].ID)
}

func TestStore_KeepsRecordsExactly(t *testing.T) {
	const in = `[{"id":"1","name":"Ann","phone":"1","address":"Main St","favorite":true},{"id":2,"name":"Bob","phone":"2"}]`
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var contacts []contact.Contact
			require.NoError(t, json.Unmarshal([]byte(in), &contacts))
			require.NoError(t, s.Set(ctx, contacts))

			got, ok, err := s.Get(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			out, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, in, string(out))
		})
	}
}

func TestUnseen(t *testing.T) {
	s, tdb := newSQLite(t)
	for name, u := range map[string]UnseenStore{"memory": NewMemoryUnseen(), "sqlite": s.Unseen()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, u.Add(ctx, "Ann"))
			require.NoError(t, u.Add(ctx, "Bob"))
			require.NoError(t, u.Add(ctx, "Ann"))

			names, err := u.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Ann", "Bob"}, names)

			require.NoError(t, u.Remove(ctx, "Ann", "missing"))
			names, err = u.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Bob"}, names)

			require.NoError(t, u.Clear(ctx))
			require.NoError(t, u.Clear(ctx))
			names, err = u.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
	assert.Equal(t, 0, tdb.CountRows(t, "unseen_names"))
}
