// Package app wires the session, document, autosave and generation
// components into one workspace, the way the editor's top-level view does.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"smartblog/internal/apiclient"
	"smartblog/internal/autosave"
	"smartblog/internal/config"
	"smartblog/internal/content"
	"smartblog/internal/documents"
	"smartblog/internal/generation"
	"smartblog/internal/logging"
	"smartblog/internal/session"
	"smartblog/internal/store"
	"smartblog/internal/types"
)

// App is the workspace controller.
type App struct {
	cfg *config.Config

	API        *apiclient.Client
	Session    *session.Store
	Docs       *documents.Store
	Autosave   *autosave.Coordinator
	Generation *generation.Client

	local    *store.LocalStore
	unsubs   []func()
	onResult func(error)

	genMu     sync.Mutex
	genCancel context.CancelFunc
	genSeq    uint64

	closeOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithSaveListener receives the outcome of every background save.
func WithSaveListener(fn func(error)) Option {
	return func(a *App) { a.onResult = fn }
}

// New opens local state and builds the components from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	local, err := store.NewLocalStore(cfg.Session.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state: %w", err)
	}

	api := apiclient.New(cfg.API.BaseURL,
		apiclient.WithTimeout(cfg.GetTimeout()),
		apiclient.WithStreamTimeout(cfg.GetStreamTimeout()),
	)
	return newApp(cfg, api, local, session.New(api, store.NewTokenSlot(local, cfg.GetTokenSlot())), opts...), nil
}

// NewWithClient builds an App over an existing client and token store.
// Local state is not opened.
func NewWithClient(cfg *config.Config, api *apiclient.Client, tokens session.TokenStore, opts ...Option) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return newApp(cfg, api, nil, session.New(api, tokens), opts...)
}

func newApp(cfg *config.Config, api *apiclient.Client, local *store.LocalStore, sess *session.Store, opts ...Option) *App {
	a := &App{
		cfg:        cfg,
		API:        api,
		Session:    sess,
		Docs:       documents.New(api),
		Generation: generation.New(api),
		local:      local,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.Autosave = autosave.New(a.Docs, a.Session.Token, autosave.Options{
		Delay:       cfg.GetAutosaveDelay(),
		SaveTimeout: cfg.GetSaveTimeout(),
		OnResult:    a.saveResult,
	})

	a.unsubs = append(a.unsubs,
		a.Session.Subscribe(a.sessionChanged),
		a.Docs.Subscribe(a.docsChanged),
	)
	logging.Boot("Workspace ready (api=%s)", api.BaseURL())
	return a
}

// Config returns the configuration the App was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Start restores the session and, when authenticated, loads the posts.
// A failed load is not fatal.
func (a *App) Start(ctx context.Context) error {
	if err := a.Session.Init(ctx); err != nil {
		return err
	}
	if !a.Session.State().Authenticated() {
		return nil
	}
	if _, err := a.Refresh(ctx); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Initial load failed: %v", err)
	}
	return nil
}

// Submit logs in or signs up, then loads the posts.
func (a *App) Submit(ctx context.Context, creds types.Credentials) error {
	if err := a.Session.Submit(ctx, creds); err != nil {
		return err
	}
	if _, err := a.Refresh(ctx); err != nil {
		logging.Get(logging.CategorySession).Warn("Load after login failed: %v", err)
	}
	return nil
}

// Logout ends the session and drops all document state.
func (a *App) Logout(ctx context.Context) error {
	return a.Session.Logout(ctx)
}

// Refresh reloads the collection.
func (a *App) Refresh(ctx context.Context) ([]types.Post, error) {
	posts, err := a.Docs.LoadAll(ctx, a.Session.Token())
	return posts, a.check(ctx, err)
}

// NewDraft creates and activates a draft.
func (a *App) NewDraft(ctx context.Context) (types.Post, error) {
	post, err := a.Docs.Create(ctx, a.Session.Token())
	return post, a.check(ctx, err)
}

// Select activates id.
func (a *App) Select(id string) bool {
	return a.Docs.Select(id)
}

// ContentChanged records an edit of the active post. body is markdown; the
// stored snapshot and its text projection are derived from it.
func (a *App) ContentChanged(title, body string) error {
	snap, err := content.FromMarkdown(body)
	if err != nil {
		return err
	}
	a.Docs.UpdatePending(types.PendingEdit{Title: title, Content: snap.Content, Text: snap.Text})
	return nil
}

// Save flushes the pending edit now.
func (a *App) Save(ctx context.Context) error {
	return a.check(ctx, a.Autosave.FlushNow(ctx))
}

// Publish publishes the active post.
func (a *App) Publish(ctx context.Context) (types.Post, error) {
	post, err := a.Docs.Publish(ctx, a.Session.Token())
	return post, a.check(ctx, err)
}

// Delete removes id.
func (a *App) Delete(ctx context.Context, id string) error {
	return a.check(ctx, a.Docs.Remove(ctx, a.Session.Token(), id))
}

// Summarize streams a summary of the active post's pending text into out.
func (a *App) Summarize(ctx context.Context, out generation.Output) error {
	text := ""
	if p := a.Docs.State().Pending; p != nil {
		text = p.Text
	}
	ctx, done := a.beginGeneration(ctx)
	defer done()
	return a.check(ctx, a.Generation.Summarize(ctx, a.Session.Token(), text, out))
}

// FixGrammar rewrites the selection on surface.
func (a *App) FixGrammar(ctx context.Context, surface generation.Surface) error {
	ctx, done := a.beginGeneration(ctx)
	defer done()
	return a.check(ctx, a.Generation.FixGrammar(ctx, a.Session.Token(), surface))
}

// CancelGeneration aborts the generation in flight, if any.
func (a *App) CancelGeneration() {
	a.genMu.Lock()
	cancel := a.genCancel
	a.genCancel = nil
	a.genMu.Unlock()
	if cancel != nil {
		logging.StreamDebug("Cancelling generation in flight")
		cancel()
	}
}

// beginGeneration derives a context that CancelGeneration aborts. Starting
// a new generation aborts the previous one.
func (a *App) beginGeneration(ctx context.Context) (context.Context, func()) {
	a.CancelGeneration()
	ctx, cancel := context.WithCancel(ctx)

	a.genMu.Lock()
	a.genSeq++
	seq := a.genSeq
	a.genCancel = cancel
	a.genMu.Unlock()

	return ctx, func() {
		a.genMu.Lock()
		if a.genSeq == seq {
			a.genCancel = nil
		}
		a.genMu.Unlock()
		cancel()
	}
}

// Close stops background work and releases local state.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.CancelGeneration()
		for _, unsub := range a.unsubs {
			unsub()
		}
		a.Autosave.Close()
		if a.local != nil {
			err = a.local.Close()
		}
		logging.Boot("Workspace closed")
	})
	return err
}

func (a *App) sessionChanged(prev, next session.State) {
	if prev.Token != "" && next.Token == "" {
		a.CancelGeneration()
		a.Autosave.Cancel()
		a.Docs.Reset()
	}
}

func (a *App) docsChanged(prev, next documents.State) {
	if prev.ActiveID != next.ActiveID {
		a.CancelGeneration()
	}
}

func (a *App) saveResult(err error) {
	if err != nil {
		a.Session.HandleError(context.Background(), err)
	}
	if a.onResult != nil {
		a.onResult(err)
	}
}

// check invalidates the session on a rejected credential and passes err through.
func (a *App) check(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if a.Session.HandleError(context.WithoutCancel(ctx), err) {
		logging.Session("Server rejected credential during %s", types.KindOf(err))
	}
	return err
}

// IsCancelled reports whether err came from an aborted generation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
