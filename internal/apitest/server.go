// Package apitest is an in-memory implementation of the blog API. It backs
// the client tests and the mock-server command.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"smartblog/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// naiveLayout matches a zone-less datetime as the upstream server emits it.
const naiveLayout = "2006-01-02T15:04:05.000000"

// Generator produces the full text a generation request streams back.
type Generator func(mode types.Mode, text string) (string, error)

// Failure makes a route answer with a fixed error.
type Failure struct {
	Status int
	Detail string
}

type record struct {
	owner string
	post  types.Post
}

// Server is the fake API. The zero value is not usable; call NewServer.
type Server struct {
	router *mux.Router

	mu       sync.Mutex
	users    map[string]string // email -> password
	tokens   map[string]string // token -> email
	posts    map[string]*record
	last     time.Time
	calls    map[string]int
	updates  []types.PostUpdate
	failures map[string]Failure
	delays   map[string]time.Duration

	now        func() time.Time
	generate   Generator
	chunkSize  int
	chunkDelay time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithGenerator replaces the default deterministic generator.
func WithGenerator(g Generator) Option {
	return func(s *Server) { s.generate = g }
}

// WithChunking sets how many characters each stream frame carries and the pause between frames.
func WithChunking(size int, delay time.Duration) Option {
	return func(s *Server) {
		if size > 0 {
			s.chunkSize = size
		}
		s.chunkDelay = delay
	}
}

// WithClock sets the time source for post timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Route names for Calls, Fail and Delay.
const (
	RouteSignup   = "signup"
	RouteLogin    = "login"
	RouteList     = "list"
	RouteCreate   = "create"
	RouteUpdate   = "update"
	RoutePublish  = "publish"
	RouteDelete   = "delete"
	RouteGenerate = "generate"
)

// NewServer builds a fake API whose routes live under /api.
func NewServer(opts ...Option) *Server {
	s := &Server{
		users:     make(map[string]string),
		tokens:    make(map[string]string),
		posts:     make(map[string]*record),
		calls:     make(map[string]int),
		failures:  make(map[string]Failure),
		delays:    make(map[string]time.Duration),
		now:       time.Now,
		generate:  DefaultGenerator,
		chunkSize: 18,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", s.route(RouteSignup, s.handleSignup)).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.route(RouteLogin, s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/posts/", s.route(RouteList, s.authed(s.handleList))).Methods(http.MethodGet)
	api.HandleFunc("/posts/", s.route(RouteCreate, s.authed(s.handleCreate))).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", s.route(RouteUpdate, s.authed(s.handleUpdate))).Methods(http.MethodPatch)
	api.HandleFunc("/posts/{id}/publish", s.route(RoutePublish, s.authed(s.handlePublish))).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", s.route(RouteDelete, s.authed(s.handleDelete))).Methods(http.MethodDelete)
	api.HandleFunc("/ai/generate", s.route(RouteGenerate, s.handleGenerate)).Methods(http.MethodPost)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// =============================================================================
// TEST HOOKS
// =============================================================================

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Updates returns every PATCH body received, in order.
func (s *Server) Updates() []types.PostUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.PostUpdate(nil), s.updates...)
}

// Fail makes route answer with f until Recover is called.
func (s *Server) Fail(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = f
}

// Recover clears the failure injected for route.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Delay makes route pause for d before answering.
func (s *Server) Delay(route string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[route] = d
}

// Register creates a user directly and returns a valid token for it.
func (s *Server) Register(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = password
	return s.issueLocked(email)
}

// Seed stores a post owned by the user behind token and returns it.
func (s *Server) Seed(token, title, text string) types.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.tokens[token]
	p := s.newPostLocked(types.NewPost{Title: title, Content: types.EmptyContent(), Text: text})
	s.posts[p.ID] = &record{owner: owner, post: p}
	return p
}

// Post returns the stored version of id.
func (s *Server) Post(id string) (types.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.posts[id]
	if !ok {
		return types.Post{}, false
	}
	return rec.post, true
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) route(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		failure, failing := s.failures[name]
		delay := s.delays[name]
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeDetail(w, failure.Status, failure.Detail)
			return
		}
		next(w, r)
	}
}

func (s *Server) authed(next func(w http.ResponseWriter, r *http.Request, owner string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Missing token")
			return
		}
		s.mu.Lock()
		owner, known := s.tokens[token]
		s.mu.Unlock()
		if !known {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r, owner)
	}
}

// =============================================================================
// AUTH
// =============================================================================

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeValidation(w, "body", "Invalid JSON")
		return
	}
	if !strings.Contains(creds.Email, "@") {
		writeValidation(w, "email", "value is not a valid email address")
		return
	}
	if utf8.RuneCountInString(creds.Password) < 6 {
		writeValidation(w, "password", "String should have at least 6 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[creds.Email]; exists {
		writeDetail(w, http.StatusBadRequest, "Email already exists")
		return
	}
	s.users[creds.Email] = creds.Password
	writeJSON(w, http.StatusOK, types.AuthResponse{AccessToken: s.issueLocked(creds.Email), TokenType: "bearer"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeValidation(w, "body", "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	password, ok := s.users[creds.Email]
	if !ok || password != creds.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, types.AuthResponse{AccessToken: s.issueLocked(creds.Email), TokenType: "bearer"})
}

func (s *Server) issueLocked(email string) string {
	token := uuid.NewString()
	s.tokens[token] = email
	return token
}

// =============================================================================
// POSTS
// =============================================================================

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, owner string) {
	s.mu.Lock()
	out := make([]types.Post, 0, len(s.posts))
	for _, rec := range s.posts {
		if rec.owner == owner {
			out = append(out, rec.post)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt.Time)
	})
	wire := make([]wirePost, len(out))
	for i, p := range out {
		wire[i] = toWire(p)
	}
	writeJSON(w, http.StatusOK, wire)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, owner string) {
	body := types.DefaultNewPost()
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeValidation(w, "body", "Invalid JSON")
			return
		}
	}
	if len(body.Content) == 0 {
		body.Content = types.EmptyContent()
	}

	s.mu.Lock()
	p := s.newPostLocked(body)
	s.posts[p.ID] = &record{owner: owner, post: p}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, toWire(p))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, owner string) {
	var u types.PostUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeValidation(w, "body", "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	rec, ok := s.posts[mux.Vars(r)["id"]]
	if !ok || rec.owner != owner {
		writeDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	if u.Title != nil {
		rec.post.Title = *u.Title
	}
	if len(u.Content) > 0 && string(u.Content) != "null" {
		rec.post.Content = append(json.RawMessage(nil), u.Content...)
	}
	if u.Text != nil {
		rec.post.Text = *u.Text
	}
	rec.post.UpdatedAt = s.tickLocked()
	writeJSON(w, http.StatusOK, toWire(rec.post))
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.posts[mux.Vars(r)["id"]]
	if !ok || rec.owner != owner {
		writeDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	rec.post.Status = types.StatusPublished
	rec.post.UpdatedAt = s.tickLocked()
	writeJSON(w, http.StatusOK, toWire(rec.post))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	rec, ok := s.posts[id]
	if !ok || rec.owner != owner {
		writeDetail(w, http.StatusNotFound, "Post not found")
		return
	}
	delete(s.posts, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) newPostLocked(body types.NewPost) types.Post {
	now := s.tickLocked()
	return types.Post{
		ID:        strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
		Title:     body.Title,
		Content:   append(json.RawMessage(nil), body.Content...),
		Text:      body.Text,
		Status:    types.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// tickLocked returns a timestamp strictly after the previous one, truncated
// to the microsecond precision of the naive wire format.
func (s *Server) tickLocked() types.Timestamp {
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return types.NewTimestamp(now)
}

// =============================================================================
// GENERATION
// =============================================================================

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "body", "Invalid JSON")
		return
	}
	if !req.Mode.Valid() {
		writeValidation(w, "mode", "String should match pattern '^(summary|grammar)$'")
		return
	}
	if req.Text == "" {
		writeValidation(w, "text", "String should have at least 1 character")
		return
	}

	output, err := s.generate(req.Mode, req.Text)
	if err != nil {
		writeDetail(w, http.StatusBadGateway, fmt.Sprintf("AI provider error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	runes := []rune(output)
	for i := 0; i < len(runes); i += s.chunkSize {
		end := i + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		fmt.Fprintf(w, "data: %s\n\n", string(runes[i:end]))
		if flusher != nil {
			flusher.Flush()
		}
		if s.chunkDelay > 0 {
			select {
			case <-time.After(s.chunkDelay):
			case <-r.Context().Done():
				return
			}
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// DefaultGenerator summarizes by keeping the first sentence and fixes
// grammar by capitalizing sentences and terminating the text.
func DefaultGenerator(mode types.Mode, text string) (string, error) {
	text = strings.TrimSpace(text)
	switch mode {
	case types.ModeSummary:
		first := text
		if i := strings.IndexAny(text, ".!?"); i >= 0 {
			first = text[:i+1]
		}
		return "Summary: " + first, nil
	default:
		var sb strings.Builder
		capNext := true
		for _, r := range text {
			if capNext && unicode.IsLetter(r) {
				r = unicode.ToUpper(r)
				capNext = false
			}
			if r == '.' || r == '!' || r == '?' {
				capNext = true
			}
			sb.WriteRune(r)
		}
		out := sb.String()
		if out != "" && !strings.ContainsRune(".!?", rune(out[len(out)-1])) {
			out += "."
		}
		return out, nil
	}
}

// =============================================================================
// RESPONSES
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeValidation answers 422 with a list-valued detail, which clients
// cannot render and must replace with their fallback message.
func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg}},
	})
}

// wirePost is a post with zone-less timestamps, as the upstream server sends them.
type wirePost struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Content   json.RawMessage  `json:"lexical_state"`
	Text      string           `json:"text_content"`
	Status    types.PostStatus `json:"status"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

func toWire(p types.Post) wirePost {
	return wirePost{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Text:      p.Text,
		Status:    p.Status,
		CreatedAt: p.CreatedAt.UTC().Format(naiveLayout),
		UpdatedAt: p.UpdatedAt.UTC().Format(naiveLayout),
	}
}
