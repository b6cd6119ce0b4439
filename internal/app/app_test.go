package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"smartblog/internal/apiclient"
	"smartblog/internal/apitest"
	"smartblog/internal/config"
	"smartblog/internal/content"
	"smartblog/internal/session"
	"smartblog/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

// summary collects streamed output.
type summary struct {
	mu     sync.Mutex
	b      strings.Builder
	resets int
}

func (s *summary) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.Reset()
	s.resets++
}

func (s *summary) Append(f string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.WriteString(f)
}

func (s *summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Autosave.Delay = "30ms"
	return cfg
}

func newTestApp(t *testing.T, opts ...apitest.Option) (*apitest.Server, *App, *session.MemoryTokenStore) {
	t.Helper()
	fake := apitest.NewServer(opts...)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tokens := session.NewMemoryTokenStore("")
	api := apiclient.New(srv.URL+"/api",
		apiclient.WithHTTPClient(srv.Client()),
		apiclient.WithStreamClient(srv.Client()),
	)
	a := NewWithClient(testConfig(), api, tokens)
	t.Cleanup(func() { a.Close() })
	return fake, a, tokens
}

func TestApp_LoginLoadsPosts(t *testing.T) {
	fake, a, _ := newTestApp(t)
	token := fake.Register("w@example.com", "secret1")
	seeded := fake.Seed(token, "hello", "world")
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	assert.False(t, a.Session.State().Authenticated())

	require.NoError(t, a.Submit(ctx, types.Credentials{Email: "w@example.com", Password: "secret1"}))
	st := a.Docs.State()
	require.Len(t, st.Drafts, 1)
	assert.Equal(t, seeded.ID, st.ActiveID)
}

func TestApp_StartRestoresCredential(t *testing.T) {
	fake := apitest.NewServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	token := fake.Register("w@example.com", "secret1")
	fake.Seed(token, "restored", "")

	a := NewWithClient(testConfig(), apiclient.New(srv.URL+"/api"), session.NewMemoryTokenStore(token))
	defer a.Close()

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, session.StatusAuthenticated, a.Session.State().Status)
	assert.Len(t, a.Docs.State().Drafts, 1)
}

func TestApp_ContentChangedAutosaves(t *testing.T) {
	fake, a, tokens := newTestApp(t)
	token := fake.Register("w@example.com", "secret1")
	ctx := context.Background()
	require.NoError(t, tokens.SaveToken(ctx, token))
	require.NoError(t, a.Start(ctx))

	post, err := a.NewDraft(ctx)
	require.NoError(t, err)

	require.NoError(t, a.ContentChanged("My title", "# Heading\n\nSome *body*"))
	require.NoError(t, a.ContentChanged("My title", "# Heading\n\nSome *body* text"))

	require.Eventually(t, func() bool { return fake.Calls(apitest.RouteUpdate) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		stored, _ := fake.Post(post.ID)
		return stored.Title == "My title"
	}, time.Second, 5*time.Millisecond)

	stored, _ := fake.Post(post.ID)
	assert.Equal(t, "Heading\n\nSome body text", stored.Text)
	text, err := content.TextOf(stored.Content)
	require.NoError(t, err)
	assert.Equal(t, stored.Text, text)
}

func TestApp_SaveNow(t *testing.T) {
	fake, a, tokens := newTestApp(t)
	token := fake.Register("w@example.com", "secret1")
	ctx := context.Background()
	require.NoError(t, tokens.SaveToken(ctx, token))
	require.NoError(t, a.Start(ctx))
	_, err := a.NewDraft(ctx)
	require.NoError(t, err)

	require.NoError(t, a.ContentChanged("now", "body"))
	require.NoError(t, a.Save(ctx))
	assert.Equal(t, 1, fake.Calls(apitest.RouteUpdate))
	assert.False(t, a.Autosave.Scheduled())
}

func TestApp_LogoutResetsDocuments(t *testing.T) {
	fake, a, tokens := newTestApp(t)
	token := fake.Register("w@example.com", "secret1")
	fake.Seed(token, "a", "")
	ctx := context.Background()
	require.NoError(t, tokens.SaveToken(ctx, token))
	require.NoError(t, a.Start(ctx))

	require.NoError(t, a.ContentChanged("unsaved", "x"))
	require.NoError(t, a.Logout(ctx))

	assert.Empty(t, a.Docs.State().Drafts)
	assert.False(t, a.Autosave.Scheduled())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, fake.Calls(apitest.RouteUpdate))

	stored, _ := tokens.LoadToken(ctx)
	assert.Empty(t, stored)
}

func TestApp_RejectedCredentialInvalidatesSession(t *testing.T) {
	fake, a, tokens := newTestApp(t)
	token := fake.Register("w@example.com", "secret1")
	fake.Seed(token, "a", "")
	ctx := context.Background()
	require.NoError(t, tokens.SaveToken(ctx, token))
	require.NoError(t, a.Start(ctx))

	fake.Fail(apitest.RouteCreate, apitest.Failure{Status: http.StatusUnauthorized, Detail: "Invalid token"})
	_, err := a.NewDraft(ctx)
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))

	st := a.Session.State()
	assert.Equal(t, session.StatusAnonymous, st.Status)
	assert.Equal(t, session.ExpiredMessage, st.Error)
	assert.Empty(t, a.Docs.State().Drafts)
}

func TestApp_SummarizeStreamsPendingText(t *testing.T) {
	fake, a, tokens := newTestApp(t)
	token := fake.Register("w@example.com", "secret1")
	ctx := context.Background()
	require.NoError(t, tokens.SaveToken(ctx, token))
	require.NoError(t, a.Start(ctx))
	_, err := a.NewDraft(ctx)
	require.NoError(t, err)

	require.NoError(t, a.ContentChanged("t", "Go is fun. It is also fast."))
	out := &summary{}
	require.NoError(t, a.Summarize(ctx, out))
	assert.Equal(t, "Summary: Go is fun.", out.String())
	assert.Equal(t, 1, out.resets)
}

func TestApp_SelectCancelsGeneration(t *testing.T) {
	fake, a, tokens := newTestApp(t, apitest.WithChunking(1, 20*time.Millisecond))
	token := fake.Register("w@example.com", "secret1")
	other := fake.Seed(token, "other", "")
	ctx := context.Background()
	require.NoError(t, tokens.SaveToken(ctx, token))
	require.NoError(t, a.Start(ctx))
	_, err := a.NewDraft(ctx)
	require.NoError(t, err)
	require.NoError(t, a.ContentChanged("t", "A fairly long sentence that streams slowly."))

	out := &summary{}
	done := make(chan error, 1)
	go func() { done <- a.Summarize(ctx, out) }()

	require.Eventually(t, func() bool { return out.String() != "" }, time.Second, 5*time.Millisecond)
	require.True(t, a.Select(other.ID))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, IsCancelled(err))
		assert.ErrorIs(t, err, types.ErrGeneration)
	case <-time.After(2 * time.Second):
		t.Fatal("generation was not cancelled")
	}
	// The session survives a cancelled stream.
	assert.True(t, a.Session.State().Authenticated())
}

func TestApp_NewOpensLocalState(t *testing.T) {
	fake := apitest.NewServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Session.DatabasePath = filepath.Join(t.TempDir(), "state.db")

	first, err := New(cfg)
	require.NoError(t, err)
	first.Session.SetMode(session.ModeSignup)
	require.NoError(t, first.Submit(context.Background(), types.Credentials{Email: "n@example.com", Password: "secret1"}))
	require.NoError(t, first.Close())

	second, err := New(cfg)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Start(context.Background()))
	assert.True(t, second.Session.State().Authenticated())
}

func TestApp_NewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.API.BaseURL = "ftp://example.com"
	_, err := New(cfg)
	assert.Error(t, err)
}
