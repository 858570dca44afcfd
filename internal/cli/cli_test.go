package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-manager/internal/cache"
	"contact-manager/internal/client"
	"contact-manager/internal/contactlist"
	"contact-manager/internal/platform/httpclient"
	"contact-manager/internal/shared"
)

type fixture struct {
	store  *cache.MemoryStore
	unseen *cache.MemoryUnseen
	gets   int32
	status int
	body   string
	posted []string
}

func newFixture(t *testing.T) (*fixture, Opener) {
	t.Helper()
	f := &fixture{
		store:  cache.NewMemoryStore(),
		unseen: cache.NewMemoryUnseen(),
		status: http.StatusOK,
		body:   `[{"id":1,"name":"Ann","phone":"111"},{"id":2,"name":"anna","phone":"222"},{"id":3,"name":"Bob","phone":"333"}]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/contacts":
			atomic.AddInt32(&f.gets, 1)
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
		case r.Method == http.MethodPost:
			b, _ := io.ReadAll(r.Body)
			f.posted = append(f.posted, r.URL.Path+" "+string(b))
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	open := func(ctx context.Context, o Overrides) (*Runtime, error) {
		c := client.New(httpclient.New(httpclient.WithLogger(log)), srv.URL, "cookie", client.WithLogger(log))
		return &Runtime{
			Service:  contactlist.NewService(c, f.store, f.unseen, log),
			LoginURL: c.LoginURL(),
			Log:      log,
		}, nil
	}
	return f, open
}

func run(open Opener, args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, open, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestList_FilterScenario(t *testing.T) {
	f, open := newFixture(t)

	code, out, _ := run(open, "list", "--filter", "an")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Ann")
	assert.Contains(t, out, "anna")
	assert.NotContains(t, out, "Bob")

	code, _, _ = run(open, "list")
	require.Equal(t, 0, code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.gets), "second list served from cache")
}

func TestList_Pagination(t *testing.T) {
	_, open := newFixture(t)
	code, out, _ := run(open, "list", "--size", "2", "--page", "2")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Bob")
	assert.NotContains(t, out, "Ann")
	assert.Contains(t, out, "Page 2 of 2 (3 contacts)")
}

func TestRefresh_Refetches(t *testing.T) {
	f, open := newFixture(t)
	run(open, "list")
	code, _, _ := run(open, "refresh")
	require.Equal(t, 0, code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.gets))
}

func TestList_ConnectivityMessage(t *testing.T) {
	f, open := newFixture(t)
	f.status = http.StatusBadGateway
	f.body = "fetch failed"

	code, out, errOut := run(open, "list")
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Equal(t, shared.ConnectivityMessage+"\n", errOut)
}

func TestList_UpstreamMessageVerbatim(t *testing.T) {
	f, open := newFixture(t)
	f.status = http.StatusNotFound
	f.body = "User not found"

	code, _, errOut := run(open, "list")
	assert.Equal(t, 1, code)
	assert.Equal(t, "User not found\n", errOut)
}

func TestAdd_ThenListMarksNew(t *testing.T) {
	f, open := newFixture(t)
	run(open, "list")

	code, out, _ := run(open, "add", "--name", "Zoe", "--phone", "999")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `Contact "Zoe" created`)
	require.Len(t, f.posted, 1)
	assert.True(t, strings.HasPrefix(f.posted[0], "/api/contacts "))

	f.body = `[{"id":1,"name":"Ann","phone":"111"},{"id":4,"name":"Zoe","phone":"999"}]`
	_, out, _ = run(open, "list")
	assert.Regexp(t, `Zoe\s+999\s+new`, out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.gets))
}

func TestAdd_InvalidEmail(t *testing.T) {
	f, open := newFixture(t)
	code, _, errOut := run(open, "add", "--name", "Zoe", "--phone", "1", "--email", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "email")
	assert.Empty(t, f.posted)
}

func TestAdd_MissingFlag(t *testing.T) {
	_, open := newFixture(t)
	code, _, errOut := run(open, "add", "--name", "Zoe")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "phone")
}

func TestUser(t *testing.T) {
	f, open := newFixture(t)
	code, _, _ := run(open, "user", "--username", "ann")
	require.Equal(t, 0, code)
	assert.Equal(t, []string{`/api/users {"username":"ann"}`}, f.posted)
}

func TestExport(t *testing.T) {
	_, open := newFixture(t)
	code, out, _ := run(open, "export")
	require.Equal(t, 0, code)
	assert.Equal(t, 3, strings.Count(out, "BEGIN:VCARD"))
}

func TestLoginAndLogout(t *testing.T) {
	f, open := newFixture(t)
	_, out, _ := run(open, "login")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "/auth/login"))

	run(open, "list")
	code, out, _ := run(open, "logout")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Logged out")
	_, ok, _ := f.store.Get(context.Background())
	assert.False(t, ok)
}
