package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trendbot/internal/account"
	"trendbot/internal/bot"
	"trendbot/internal/domain"
	"trendbot/internal/logtail"
	"trendbot/internal/storage"
)

type fakeBot struct {
	mu      sync.Mutex
	running bool
	runs    int
	ran     chan struct{}
}

func (f *fakeBot) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeBot) Toggle(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = !f.running
	return f.running
}

func (f *fakeBot) RunOnce(context.Context) bot.Report {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.ran != nil {
		f.ran <- struct{}{}
	}
	return bot.Report{Outcome: bot.OutcomePosted}
}

func (f *fakeBot) LastReport() *bot.Report {
	return &bot.Report{Outcome: bot.OutcomeNoSnippets, ReadAccount: "browse", StartedAt: time.Now()}
}

type fakePosts struct {
	posts []domain.Post
	err   error
}

func (f *fakePosts) Save(context.Context, domain.Post) error { return nil }

func (f *fakePosts) Recent(context.Context, int) ([]domain.Post, error) {
	return f.posts, f.err
}

type testServer struct {
	srv      *Server
	bot      *fakeBot
	registry *account.Registry
	tail     *logtail.Memory
}

func newTestServer(t *testing.T, posts *fakePosts) *testServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	reg, err := account.NewRegistry([]account.Spec{
		{Name: "main", Limits: account.Limits{Read: 100, Post: 500}},
		{Name: "browse", Limits: account.Limits{Read: 100, Post: 500}},
	})
	require.NoError(t, err)

	tail := logtail.NewMemory(50)
	for _, l := range []string{"one", "two", "three"} {
		require.NoError(t, tail.Append(context.Background(), l))
	}

	fb := &fakeBot{}
	opts := Options{
		BotName:           "TrendBot",
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
		TailLines:         2,
	}

	var repo storage.PostRepository
	if posts != nil {
		repo = posts
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(context.Background(), fb, reg, tail, repo, opts, logger)

	return &testServer{srv: srv, bot: fb, registry: reg, tail: tail}
}

func (ts *testServer) do(t *testing.T, method, path string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/", "/get_logs", "/toggle_bot", "/api/accounts"} {
		rec := ts.do(t, http.MethodGet, path, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Login Required")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.False(t, ts.bot.Running())
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/", true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "TrendBot")
	assert.Contains(t, body, "stopped")
	assert.Contains(t, body, "100 / 100")
	assert.Contains(t, body, "no_snippets")
	assert.Contains(t, body, "<pre id=\"logs\">two\nthree\n</pre>")
}

func TestToggle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/toggle_bot", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"started"}`, rec.Body.String())
	assert.True(t, ts.bot.Running())

	// one request per second per client
	rec = ts.do(t, http.MethodGet, "/toggle_bot", true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, ts.bot.Running())

	time.Sleep(1100 * time.Millisecond)

	rec = ts.do(t, http.MethodPost, "/toggle_bot", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"stopped"}`, rec.Body.String())
	assert.False(t, ts.bot.Running())
}

func TestRateLimitIsPerRoute(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/get_logs", true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/toggle_bot", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/get_logs", true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetLogs(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/get_logs", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "two\nthree", body["logs"])
}

func TestAccountsAndRefill(t *testing.T) {
	ts := newTestServer(t, nil)
	require.NoError(t, ts.registry.RecordReadSuccess("main"))
	require.NoError(t, ts.registry.RecordPostSuccess("main"))

	rec := ts.do(t, http.MethodGet, "/api/accounts", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var statuses []account.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, 99, statuses[0].ReadRemaining)
	assert.Equal(t, 499, statuses[0].PostRemaining)
	assert.True(t, statuses[0].Posting)
	assert.NotContains(t, rec.Body.String(), "bearer")

	rec = ts.do(t, http.MethodPost, "/api/accounts/main/refill", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, ts.registry.Snapshot()[0].ReadRemaining)
	assert.Equal(t, 500, ts.registry.Snapshot()[0].PostRemaining)

	rec = ts.do(t, http.MethodPost, "/api/accounts/nobody/refill", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.bot.ran = make(chan struct{}, 1)

	rec := ts.do(t, http.MethodPost, "/api/run", true)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-ts.bot.ran:
	case <-time.After(time.Second):
		t.Fatal("cycle was not triggered")
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/status", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)
	assert.Contains(t, rec.Body.String(), `"outcome":"no_snippets"`)
}

func TestPosts(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/posts", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts = newTestServer(t, &fakePosts{posts: []domain.Post{{ID: "main-1", Content: "hello"}}})
	rec = ts.do(t, http.MethodGet, "/api/posts", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"hello"`)

	ts = newTestServer(t, &fakePosts{err: errors.New("db down")})
	rec = ts.do(t, http.MethodGet, "/api/posts", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEventsStreamsBroadcasts(t *testing.T) {
	ts := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		ts.srv.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		ts.srv.sse.mu.RLock()
		defer ts.srv.sse.mu.RUnlock()
		return len(ts.srv.sse.clients) == 1
	}, time.Second, 5*time.Millisecond)

	ts.srv.Broadcast("level=INFO msg=\"[POSTED] commentary published\"")

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ": ping"))
	assert.Contains(t, body, "event: log\n")
	assert.Contains(t, body, "data: level=INFO msg=\"[POSTED] commentary published\"")
}

func TestTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", timeAgo(time.Now()))
	assert.Equal(t, "5m ago", timeAgo(time.Now().Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", timeAgo(time.Now().Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", timeAgo(time.Now().Add(-49*time.Hour)))
}
