package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartblog/internal/apitest"
	"smartblog/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFake(t *testing.T) (*apitest.Server, *Client) {
	t.Helper()
	fake := apitest.NewServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, New(srv.URL+"/api", WithHTTPClient(srv.Client()), WithStreamClient(srv.Client()))
}

func TestClient_SignupLoginFlow(t *testing.T) {
	_, c := newFake(t)
	ctx := context.Background()
	creds := types.Credentials{Email: "a@example.com", Password: "secret1"}

	signup, err := c.Signup(ctx, creds)
	require.NoError(t, err)
	assert.NotEmpty(t, signup.AccessToken)
	assert.Equal(t, "bearer", signup.TokenType)

	_, err = c.Signup(ctx, creds)
	require.Error(t, err)
	assert.Equal(t, "Email already exists", err.Error())
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	_, err = c.Login(ctx, types.Credentials{Email: "a@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.True(t, IsUnauthorized(err))

	login, err := c.Login(ctx, creds)
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
}

func TestClient_ValidationDetailFallsBack(t *testing.T) {
	_, c := newFake(t)

	_, err := c.Signup(context.Background(), types.Credentials{Email: "a@example.com", Password: "123"})
	require.Error(t, err)
	assert.Equal(t, FallbackRequest, err.Error())
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(err))
}

func TestClient_PostLifecycle(t *testing.T) {
	fake, c := newFake(t)
	ctx := context.Background()
	token := fake.Register("u@example.com", "secret1")

	created, err := c.CreatePost(ctx, token, types.DefaultNewPost())
	require.NoError(t, err)
	assert.Equal(t, "Untitled", created.Title)
	assert.Equal(t, types.StatusDraft, created.Status)
	assert.False(t, created.UpdatedAt.IsZero(), "zone-less timestamps must decode")

	pending := types.PendingEdit{Title: "Hello", Content: json.RawMessage(`{"root":{"type":"root"}}`), Text: "body"}
	updated, err := c.UpdatePost(ctx, token, created.ID, pending.Update())
	require.NoError(t, err)
	assert.Equal(t, "Hello", updated.Title)
	assert.Equal(t, "body", updated.Text)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt.Time))

	published, err := c.PublishPost(ctx, token, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, published.Status)

	list, err := c.ListPosts(ctx, token)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, c.DeletePost(ctx, token, created.ID))
	// Second delete hits a 404 and is still a success.
	require.NoError(t, c.DeletePost(ctx, token, created.ID))
	assert.Equal(t, 2, fake.Calls(apitest.RouteDelete))
}

func TestClient_MissingTokenIsUnauthorized(t *testing.T) {
	_, c := newFake(t)
	_, err := c.ListPosts(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Missing token", err.Error())
}

func TestClient_DeleteFailureUsesDeleteFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	err := New(srv.URL).DeletePost(context.Background(), "t", "id")
	require.Error(t, err)
	assert.Equal(t, FallbackDelete, err.Error())
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
}

func TestClient_SendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/api/posts/", r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	posts, err := New(srv.URL+"/api/").ListPosts(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get(RequestIDHeader))
}

func TestClient_OpenStream(t *testing.T) {
	_, c := newFake(t)

	body, err := c.OpenStream(context.Background(), "", types.ModeGrammar, "hello world")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: Hello world.\n\ndata: [DONE]\n\n", string(data))
}

func TestClient_OpenStreamErrors(t *testing.T) {
	t.Run("detail", func(t *testing.T) {
		fake, c := newFake(t)
		fake.Fail(apitest.RouteGenerate, apitest.Failure{Status: http.StatusServiceUnavailable, Detail: "HF_API_KEY is missing"})

		_, err := c.OpenStream(context.Background(), "", types.ModeSummary, "x")
		require.Error(t, err)
		assert.Equal(t, "HF_API_KEY is missing", err.Error())
	})

	t.Run("no body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := New(srv.URL).OpenStream(context.Background(), "", types.ModeSummary, "x")
		require.Error(t, err)
		assert.Equal(t, FallbackStream, err.Error())
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(url).OpenStream(context.Background(), "", types.ModeSummary, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), FallbackStream)
		assert.Equal(t, 0, StatusOf(err))
	})
}
