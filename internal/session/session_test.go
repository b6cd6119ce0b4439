package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartblog/internal/apiclient"
	"smartblog/internal/apitest"
	"smartblog/internal/store"
	"smartblog/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingAuth holds every call until release is closed.
type blockingAuth struct {
	started chan struct{}
	release chan struct{}
	resp    types.AuthResponse
	err     error
}

func (b *blockingAuth) Login(ctx context.Context, _ types.Credentials) (types.AuthResponse, error) {
	b.started <- struct{}{}
	<-b.release
	return b.resp, b.err
}

func (b *blockingAuth) Signup(ctx context.Context, c types.Credentials) (types.AuthResponse, error) {
	return b.Login(ctx, c)
}

func newAPI(t *testing.T) (*apitest.Server, *apiclient.Client) {
	t.Helper()
	fake := apitest.NewServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, apiclient.New(srv.URL + "/api")
}

func TestSession_SignupThenLoginPersists(t *testing.T) {
	_, api := newAPI(t)
	tokens := NewMemoryTokenStore("")
	s := New(api, tokens)
	ctx := context.Background()
	creds := types.Credentials{Email: "a@example.com", Password: "secret1"}

	s.SetMode(ModeSignup)
	require.NoError(t, s.Submit(ctx, creds))
	assert.Equal(t, StatusAuthenticated, s.State().Status)

	stored, _ := tokens.LoadToken(ctx)
	assert.Equal(t, s.Token(), stored)

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, StatusAnonymous, s.State().Status)
	stored, _ = tokens.LoadToken(ctx)
	assert.Empty(t, stored)

	s.SetMode(ModeLogin)
	require.NoError(t, s.Submit(ctx, creds))
	assert.True(t, s.State().Authenticated())
}

func TestSession_FailedSubmitRecordsErrorAndPersistsNothing(t *testing.T) {
	_, api := newAPI(t)
	tokens := NewMemoryTokenStore("")
	s := New(api, tokens)

	err := s.Submit(context.Background(), types.Credentials{Email: "nobody@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAuth)

	st := s.State()
	assert.Equal(t, StatusAnonymous, st.Status)
	assert.Equal(t, "Invalid credentials", st.Error)
	stored, _ := tokens.LoadToken(context.Background())
	assert.Empty(t, stored)
}

func TestSession_FailedSubmitKeepsExistingCredential(t *testing.T) {
	_, api := newAPI(t)
	s := New(api, NewMemoryTokenStore("existing"))
	require.NoError(t, s.Init(context.Background()))

	err := s.Submit(context.Background(), types.Credentials{Email: "x@example.com", Password: "badpass"})
	require.Error(t, err)
	assert.Equal(t, "existing", s.Token())
	assert.Equal(t, StatusAuthenticated, s.State().Status)
}

func TestSession_SetModeClearsError(t *testing.T) {
	_, api := newAPI(t)
	s := New(api, NewMemoryTokenStore(""))
	_ = s.Submit(context.Background(), types.Credentials{Email: "x@example.com", Password: "secret1"})
	require.NotEmpty(t, s.State().Error)

	s.SetMode(ModeSignup)
	assert.Empty(t, s.State().Error)
	assert.Equal(t, ModeSignup, s.State().Mode)
}

func TestSession_AuthenticatingWhileInFlight(t *testing.T) {
	auth := &blockingAuth{
		started: make(chan struct{}),
		release: make(chan struct{}),
		resp:    types.AuthResponse{AccessToken: "tok", TokenType: "bearer"},
	}
	s := New(auth, NewMemoryTokenStore(""))

	var seen []Status
	s.Subscribe(func(_, next State) { seen = append(seen, next.Status) })

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), types.Credentials{Email: "a@b.c", Password: "secret1"}) }()

	<-auth.started
	assert.Equal(t, StatusAuthenticating, s.State().Status)
	close(auth.release)
	require.NoError(t, <-done)

	assert.Equal(t, StatusAuthenticated, s.State().Status)
	assert.Contains(t, seen, StatusAuthenticating)
}

func TestSession_HandleErrorInvalidatesOn401(t *testing.T) {
	_, api := newAPI(t)
	s := New(api, NewMemoryTokenStore("stale"))
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	_, err := api.ListPosts(ctx, s.Token())
	require.Error(t, err)

	assert.True(t, s.HandleError(ctx, err))
	assert.Equal(t, StatusAnonymous, s.State().Status)
	assert.Equal(t, ExpiredMessage, s.State().Error)

	assert.False(t, s.HandleError(ctx, errors.New("other")))
	assert.False(t, s.HandleError(ctx, &apiclient.Error{StatusCode: http.StatusInternalServerError}))
}

func TestSession_ReloadSurvivalWithLocalStore(t *testing.T) {
	_, api := newAPI(t)
	ctx := context.Background()
	local, err := store.NewLocalStore(":memory:")
	require.NoError(t, err)
	defer local.Close()
	slot := store.NewTokenSlot(local, "smart_blog_token")

	first := New(api, slot)
	first.SetMode(ModeSignup)
	require.NoError(t, first.Submit(ctx, types.Credentials{Email: "r@example.com", Password: "secret1"}))

	// A fresh store over the same slot sees the credential.
	second := New(api, slot)
	require.NoError(t, second.Init(ctx))
	assert.Equal(t, first.Token(), second.Token())
	assert.Equal(t, StatusAuthenticated, second.State().Status)
}
