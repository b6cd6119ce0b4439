// Package apiclient is the HTTP transport for the blog API: bearer-token REST
// calls for auth and posts, and the chunked generation stream.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smartblog/internal/logging"
	"smartblog/internal/types"

	"github.com/google/uuid"
)

// Fallback messages used when an error response carries no usable detail.
const (
	FallbackRequest = "Request failed"
	FallbackDelete  = "Delete failed"
	FallbackStream  = "Unable to stream AI response"
)

// RequestIDHeader carries the per-call correlation id.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 64 << 10

// Error is a normalized transport failure. Error() is the human-readable
// message: the server's detail string or a fallback.
type Error struct {
	StatusCode int // 0 when the request never got a response
	Detail     string
	Err        error // underlying network error, if any
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// Client talks to the blog API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	streamHTTP *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for REST calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithStreamClient sets the client used for the generation stream.
func WithStreamClient(h *http.Client) Option {
	return func(c *Client) { c.streamHTTP = h }
}

// WithTimeout sets the REST timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

// WithStreamTimeout sets the deadline for a whole generation stream.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Client) { c.streamHTTP = &http.Client{Timeout: d} }
}

// New creates a client for baseURL, which includes the /api prefix.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		streamHTTP: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// AUTH
// =============================================================================

// Signup registers a user and returns the issued token.
func (c *Client) Signup(ctx context.Context, creds types.Credentials) (types.AuthResponse, error) {
	var out types.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/signup", "", creds, &out, FallbackRequest)
	return out, err
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds types.Credentials) (types.AuthResponse, error) {
	var out types.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", creds, &out, FallbackRequest)
	return out, err
}

// =============================================================================
// POSTS
// =============================================================================

// ListPosts returns the caller's posts, most recently updated first.
func (c *Client) ListPosts(ctx context.Context, token string) ([]types.Post, error) {
	var out []types.Post
	if err := c.do(ctx, http.MethodGet, "/posts/", token, nil, &out, FallbackRequest); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePost creates a post.
func (c *Client) CreatePost(ctx context.Context, token string, p types.NewPost) (types.Post, error) {
	var out types.Post
	err := c.do(ctx, http.MethodPost, "/posts/", token, p, &out, FallbackRequest)
	return out, err
}

// UpdatePost applies a partial update.
func (c *Client) UpdatePost(ctx context.Context, token, id string, u types.PostUpdate) (types.Post, error) {
	var out types.Post
	err := c.do(ctx, http.MethodPatch, "/posts/"+url.PathEscape(id), token, u, &out, FallbackRequest)
	return out, err
}

// PublishPost moves a post to published.
func (c *Client) PublishPost(ctx context.Context, token, id string) (types.Post, error) {
	var out types.Post
	err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(id)+"/publish", token, nil, &out, FallbackRequest)
	return out, err
}

// DeletePost deletes a post. A 404 means it is already gone and is not an error.
func (c *Client) DeletePost(ctx context.Context, token, id string) error {
	err := c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), token, nil, nil, FallbackDelete)
	if IsNotFound(err) {
		logging.APIDebug("DeletePost %s: already gone", id)
		return nil
	}
	return err
}

// =============================================================================
// GENERATION
// =============================================================================

// OpenStream starts a generation request and returns the event stream body.
// The caller must close it.
func (c *Client) OpenStream(ctx context.Context, token string, mode types.Mode, text string) (io.ReadCloser, error) {
	reqID := uuid.NewString()
	log := logging.Get(logging.CategoryAPI).WithRequest(reqID)

	req, err := c.newRequest(ctx, http.MethodPost, "/ai/generate", token, reqID, types.GenerateRequest{Mode: mode, Text: text})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	log.Debug("POST /ai/generate mode=%s len=%d", mode, len(text))
	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		log.Warn("stream request failed: %v", err)
		return nil, &Error{Detail: fmt.Sprintf("%s: %v", FallbackStream, err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := decodeError(resp, FallbackStream)
		log.Warn("stream rejected: %d %s", resp.StatusCode, apiErr.Detail)
		return nil, apiErr
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &Error{StatusCode: resp.StatusCode, Detail: FallbackStream}
	}
	return resp.Body, nil
}

// =============================================================================
// PLUMBING
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path, token, reqID string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any, fallback string) error {
	reqID := uuid.NewString()
	log := logging.Get(logging.CategoryAPI).WithRequest(reqID)
	timer := logging.StartTimer(logging.CategoryAPI, method+" "+path)
	defer timer.StopWithThreshold(2 * time.Second)

	req, err := c.newRequest(ctx, method, path, token, reqID, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("%s %s failed: %v", method, path, err)
		return &Error{Detail: fmt.Sprintf("%s: %v", fallback, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp, fallback)
		log.Info("%s %s -> %d %s", method, path, resp.StatusCode, apiErr.Detail)
		return apiErr
	}
	log.Debug("%s %s -> %d", method, path, resp.StatusCode)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("invalid response: %v", err), Err: err}
	}
	return nil
}

// decodeError reads a {detail: string} payload. Anything else yields fallback.
func decodeError(resp *http.Response, fallback string) *Error {
	apiErr := &Error{StatusCode: resp.StatusCode, Detail: fallback}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return apiErr
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
		apiErr.Detail = detail
	}
	return apiErr
}
