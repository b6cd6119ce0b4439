// Package autosave turns a stream of pending-edit changes into at most one
// save per quiet period.
//
// The coordinator arms a timer when a credential is held and the active
// post's pending edit changes. Further edits re-arm it. Switching the active
// post, or losing the credential, cancels it without saving. Saves go through
// the document store, so they are serialized with manual saves.
package autosave

import (
	"context"
	"sync"
	"time"

	"smartblog/internal/config"
	"smartblog/internal/documents"
	"smartblog/internal/logging"
	"smartblog/internal/observable"
)

// Source is the document store as seen by the coordinator.
type Source interface {
	Subscribe(l observable.Listener[documents.State]) func()
	Flush(ctx context.Context, token string) error
}

// Options tunes the coordinator. Zero values take the defaults.
type Options struct {
	Delay       time.Duration
	SaveTimeout time.Duration

	// OnResult, if set, receives the outcome of every timer-driven save.
	OnResult func(err error)
}

func (o Options) withDefaults() Options {
	if o.Delay <= 0 {
		o.Delay = config.DefaultAutosaveDelay
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = config.DefaultSaveTimeout
	}
	return o
}

// Coordinator debounces saves for one document store.
type Coordinator struct {
	src   Source
	token func() string
	opts  Options

	debounce *Debouncer
	unsub    func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	saves  int
}

// New subscribes to src and starts coordinating. token is read both when
// arming and when the timer fires.
func New(src Source, token func() string, opts Options) *Coordinator {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		src:      src,
		token:    token,
		opts:     opts,
		debounce: NewDebouncer(opts.Delay),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.unsub = src.Subscribe(c.observe)
	logging.AutosaveDebug("Coordinator started (delay=%v)", c.debounce.Duration())
	return c
}

func (c *Coordinator) observe(prev, next documents.State) {
	switch {
	case prev.ActiveID != next.ActiveID:
		if c.debounce.Pending() {
			logging.AutosaveDebug("Active post changed, dropping scheduled save for %s", prev.ActiveID)
		}
		c.debounce.Cancel()
	case prev.EditSeq != next.EditSeq:
		if next.Pending == nil || c.token() == "" {
			c.debounce.Cancel()
			return
		}
		c.arm()
	}
}

func (c *Coordinator) arm() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.debounce.Debounce(c.fire)
}

// fire runs on the timer goroutine.
func (c *Coordinator) fire() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	token := c.token()
	if token == "" {
		logging.AutosaveDebug("No credential at fire time, skipping save")
		return
	}

	err := c.save(c.ctx, token)
	if c.opts.OnResult != nil {
		c.opts.OnResult(err)
	}
}

func (c *Coordinator) save(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SaveTimeout)
	defer cancel()

	c.mu.Lock()
	c.saves++
	c.mu.Unlock()

	err := c.src.Flush(ctx, token)
	if err != nil {
		logging.Get(logging.CategoryAutosave).Warn("Save failed: %v", err)
	} else {
		logging.AutosaveDebug("Save completed")
	}
	return err
}

// FlushNow cancels any scheduled save and saves immediately.
func (c *Coordinator) FlushNow(ctx context.Context) error {
	var err error
	c.debounce.Immediate(func() {
		if token := c.token(); token != "" {
			err = c.save(ctx, token)
		}
	})
	return err
}

// Cancel drops the scheduled save without saving.
func (c *Coordinator) Cancel() {
	c.debounce.Cancel()
}

// Scheduled reports whether a save is waiting for its timer.
func (c *Coordinator) Scheduled() bool {
	return c.debounce.Pending()
}

// Saves returns how many saves the coordinator has started.
func (c *Coordinator) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

// Close unsubscribes, drops any scheduled save, aborts a save in flight and
// waits for it to return. Close is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.unsub()
	c.debounce.Cancel()
	c.cancel()
	c.wg.Wait()
	logging.AutosaveDebug("Coordinator closed")
}
