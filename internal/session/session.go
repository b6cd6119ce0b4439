// Package session owns the bearer credential and the login/signup/logout
// lifecycle. It is the only component that touches credential storage;
// everything else receives the token as a parameter.
package session

import (
	"context"
	"errors"
	"sync"

	"smartblog/internal/apiclient"
	"smartblog/internal/logging"
	"smartblog/internal/observable"
	"smartblog/internal/types"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
)

// Mode selects which call Submit makes.
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeSignup Mode = "signup"
)

// ExpiredMessage is recorded when the server rejects a stored credential.
const ExpiredMessage = "Session expired. Please log in again."

// State is what subscribers observe.
type State struct {
	Token  string
	Status Status
	Mode   Mode
	Error  string
}

// Authenticated reports whether a credential is held.
func (s State) Authenticated() bool {
	return s.Token != ""
}

// TokenStore is the single persisted credential slot.
type TokenStore interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Authenticator issues tokens. *apiclient.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, creds types.Credentials) (types.AuthResponse, error)
	Signup(ctx context.Context, creds types.Credentials) (types.AuthResponse, error)
}

// Store is the session store.
type Store struct {
	state  *observable.Store[State]
	auth   Authenticator
	tokens TokenStore

	mu       sync.Mutex
	inflight int
}

// New creates an anonymous session in login mode.
func New(auth Authenticator, tokens TokenStore) *Store {
	return &Store{
		state:  observable.New(State{Status: StatusAnonymous, Mode: ModeLogin}),
		auth:   auth,
		tokens: tokens,
	}
}

// Init restores a persisted credential, if any.
func (s *Store) Init(ctx context.Context) error {
	token, err := s.tokens.LoadToken(ctx)
	if err != nil {
		logging.Get(logging.CategorySession).Warn("Failed to load stored credential: %v", err)
		return err
	}
	if token != "" {
		logging.Session("Restored stored credential")
	}
	s.apply(func(st State) State {
		st.Token = token
		return st
	})
	return nil
}

// State returns the current state.
func (s *Store) State() State {
	return s.state.Get()
}

// Token returns the current credential, or "".
func (s *Store) Token() string {
	return s.state.Get().Token
}

// Subscribe registers l for state changes.
func (s *Store) Subscribe(l observable.Listener[State]) func() {
	return s.state.Subscribe(l)
}

// SetMode switches between login and signup and clears any error.
func (s *Store) SetMode(m Mode) {
	s.apply(func(st State) State {
		st.Mode = m
		st.Error = ""
		return st
	})
}

// Submit logs in or signs up according to the current mode. On failure the
// error is recorded and any credential already held is kept. Concurrent
// submits are not coalesced; whichever response completes last wins.
func (s *Store) Submit(ctx context.Context, creds types.Credentials) error {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	mode := s.apply(func(st State) State {
		st.Error = ""
		return st
	}).Mode

	var (
		resp types.AuthResponse
		err  error
	)
	if mode == ModeSignup {
		resp, err = s.auth.Signup(ctx, creds)
	} else {
		resp, err = s.auth.Login(ctx, creds)
	}

	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()

	if err == nil && resp.AccessToken == "" {
		err = errors.New("server returned no access token")
	}
	if err != nil {
		logging.Session("%s failed for %s: %v", mode, creds.Email, err)
		s.apply(func(st State) State {
			st.Error = err.Error()
			return st
		})
		return types.Wrap(types.KindAuth, string(mode), err)
	}

	if perr := s.tokens.SaveToken(ctx, resp.AccessToken); perr != nil {
		// Still authenticated for this run
		logging.Get(logging.CategorySession).Warn("Failed to persist credential: %v", perr)
	}
	logging.Session("%s succeeded for %s", mode, creds.Email)
	s.apply(func(st State) State {
		st.Token = resp.AccessToken
		st.Error = ""
		return st
	})
	return nil
}

// Logout clears the credential and its persisted copy.
func (s *Store) Logout(ctx context.Context) error {
	logging.Session("Logout")
	return s.clear(ctx, "")
}

// Invalidate drops a credential the server no longer accepts.
func (s *Store) Invalidate(ctx context.Context) error {
	logging.Session("Credential invalidated")
	return s.clear(ctx, ExpiredMessage)
}

// HandleError invalidates the session when err is a 401 and reports whether it did.
func (s *Store) HandleError(ctx context.Context, err error) bool {
	if err == nil || !apiclient.IsUnauthorized(err) || s.Token() == "" {
		return false
	}
	_ = s.Invalidate(ctx)
	return true
}

func (s *Store) clear(ctx context.Context, message string) error {
	err := s.tokens.ClearToken(ctx)
	if err != nil {
		logging.Get(logging.CategorySession).Warn("Failed to clear stored credential: %v", err)
	}
	s.apply(func(st State) State {
		st.Token = ""
		st.Error = message
		return st
	})
	return err
}

// apply updates the state and recomputes Status.
func (s *Store) apply(fn func(State) State) State {
	s.mu.Lock()
	authenticating := s.inflight > 0
	s.mu.Unlock()

	return s.state.Update(func(st State) State {
		st = fn(st)
		switch {
		case authenticating:
			st.Status = StatusAuthenticating
		case st.Token != "":
			st.Status = StatusAuthenticated
		default:
			st.Status = StatusAnonymous
		}
		return st
	})
}

// =============================================================================
// IN-MEMORY TOKEN STORE
// =============================================================================

// MemoryTokenStore keeps the credential for the process lifetime only.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore returns a store seeded with token.
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (m *MemoryTokenStore) LoadToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryTokenStore) SaveToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokenStore) ClearToken(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
