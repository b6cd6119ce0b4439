// Package documents holds the post collection, the active post and its
// pending (not yet confirmed) edit.
//
// The collection and the pending edit are mutated only by Store methods.
// Every change is published as one State value, so subscribers never see
// the active id and the pending edit disagree.
package documents

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"smartblog/internal/logging"
	"smartblog/internal/observable"
	"smartblog/internal/types"
)

// ErrNoActive is returned by operations that need an active post.
var ErrNoActive = errors.New("no active post")

// State is the observable document state. Treat it as immutable.
type State struct {
	Drafts   []types.Post
	ActiveID string
	Pending  *types.PendingEdit

	// EditSeq advances only on UpdatePending, never on seeding.
	EditSeq uint64

	IsSaving    bool
	LastSavedAt time.Time
	SaveError   string
}

// Active returns the active post as last confirmed by the server.
func (s State) Active() (types.Post, bool) {
	if s.ActiveID == "" {
		return types.Post{}, false
	}
	i := s.index(s.ActiveID)
	if i < 0 {
		return types.Post{}, false
	}
	return s.Drafts[i], true
}

// Dirty reports whether the pending edit differs from the confirmed post.
func (s State) Dirty() bool {
	p, ok := s.Active()
	if !ok || s.Pending == nil {
		return false
	}
	return p.Title != s.Pending.Title || p.Text != s.Pending.Text || !bytes.Equal(p.Content, s.Pending.Content)
}

func (s State) index(id string) int {
	for i, p := range s.Drafts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// API is the subset of the transport the store needs.
type API interface {
	ListPosts(ctx context.Context, token string) ([]types.Post, error)
	CreatePost(ctx context.Context, token string, p types.NewPost) (types.Post, error)
	UpdatePost(ctx context.Context, token, id string, u types.PostUpdate) (types.Post, error)
	PublishPost(ctx context.Context, token, id string) (types.Post, error)
	DeletePost(ctx context.Context, token, id string) error
}

// Store is the document state store.
type Store struct {
	state *observable.Store[State]
	api   API

	flushMu sync.Mutex
}

// New creates an empty store.
func New(api API) *Store {
	return &Store{state: observable.New(State{}), api: api}
}

// State returns the current state.
func (s *Store) State() State {
	return s.state.Get()
}

// Subscribe registers l for state changes.
func (s *Store) Subscribe(l observable.Listener[State]) func() {
	return s.state.Subscribe(l)
}

// LoadAll replaces the collection with the server's and activates the first post.
func (s *Store) LoadAll(ctx context.Context, token string) ([]types.Post, error) {
	posts, err := s.api.ListPosts(ctx, token)
	if err != nil {
		logging.Get(logging.CategoryDocuments).Warn("LoadAll failed: %v", err)
		return nil, types.Wrap(types.KindFetch, "load", err)
	}
	posts = dedupe(posts)

	s.state.Update(func(st State) State {
		st.Drafts = posts
		st.SaveError = ""
		if len(posts) == 0 {
			st.ActiveID, st.Pending = "", nil
		} else {
			st.ActiveID, st.Pending = posts[0].ID, posts[0].Pending()
		}
		return st
	})
	logging.Documents("Loaded %d posts", len(posts))
	return posts, nil
}

// Create makes a new draft with default fields, prepends it and activates it.
func (s *Store) Create(ctx context.Context, token string) (types.Post, error) {
	post, err := s.api.CreatePost(ctx, token, types.DefaultNewPost())
	if err != nil {
		logging.Get(logging.CategoryDocuments).Warn("Create failed: %v", err)
		return types.Post{}, types.Wrap(types.KindCreate, "create", err)
	}

	s.state.Update(func(st State) State {
		drafts := make([]types.Post, 0, len(st.Drafts)+1)
		drafts = append(drafts, post)
		for _, p := range st.Drafts {
			if p.ID != post.ID {
				drafts = append(drafts, p)
			}
		}
		st.Drafts = drafts
		st.ActiveID, st.Pending = post.ID, post.Pending()
		st.SaveError = ""
		return st
	})
	logging.Documents("Created post %s", post.ID)
	return post, nil
}

// Select activates id and re-seeds the pending edit from its confirmed state.
// It reports false and changes nothing when id is not in the collection.
func (s *Store) Select(id string) bool {
	found := false
	s.state.Update(func(st State) State {
		i := st.index(id)
		if i < 0 {
			return st
		}
		found = true
		st.ActiveID, st.Pending = id, st.Drafts[i].Pending()
		st.SaveError = ""
		return st
	})
	if found {
		logging.DocumentsDebug("Selected post %s", id)
	}
	return found
}

// UpdatePending replaces the pending edit of the active post. It never
// touches the server. It reports false when no post is active.
func (s *Store) UpdatePending(edit types.PendingEdit) bool {
	applied := false
	s.state.Update(func(st State) State {
		if st.ActiveID == "" {
			return st
		}
		applied = true
		e := edit
		e.Content = append([]byte(nil), edit.Content...)
		st.Pending = &e
		st.EditSeq++
		return st
	})
	return applied
}

// Flush persists the pending edit of the active post, captured when the
// flush starts. Flushes run one at a time. On failure the error is recorded
// against the post if it is still active, and the pending edit is left as it
// is; nothing is retried.
func (s *Store) Flush(ctx context.Context, token string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var (
		id      string
		pending *types.PendingEdit
	)
	s.state.Update(func(st State) State {
		if st.ActiveID == "" || st.Pending == nil {
			return st
		}
		id, pending = st.ActiveID, st.Pending
		st.IsSaving = true
		st.SaveError = ""
		return st
	})
	if id == "" {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryDocuments, "flush "+id)
	updated, err := s.api.UpdatePost(ctx, token, id, pending.Update())
	timer.Stop()

	if err != nil {
		logging.Get(logging.CategoryDocuments).Warn("Flush of %s failed: %v", id, err)
		s.state.Update(func(st State) State {
			st.IsSaving = false
			// The error belongs to id; another post may be active by now.
			if st.ActiveID == id {
				st.SaveError = err.Error()
			}
			return st
		})
		return types.Wrap(types.KindSave, "flush", err)
	}

	s.state.Update(func(st State) State {
		st.IsSaving = false
		if st.ActiveID == id {
			st.LastSavedAt = updated.UpdatedAt.Time
		}
		st.Drafts = replace(st.Drafts, updated)
		return st
	})
	logging.Documents("Saved post %s at %s", id, updated.UpdatedAt.Format(time.RFC3339))
	return nil
}

// Publish moves the active post to published.
func (s *Store) Publish(ctx context.Context, token string) (types.Post, error) {
	id := s.state.Get().ActiveID
	if id == "" {
		return types.Post{}, types.Wrap(types.KindPublish, "publish", ErrNoActive)
	}

	post, err := s.api.PublishPost(ctx, token, id)
	if err != nil {
		logging.Get(logging.CategoryDocuments).Warn("Publish of %s failed: %v", id, err)
		return types.Post{}, types.Wrap(types.KindPublish, "publish", err)
	}

	var stored types.Post
	s.state.Update(func(st State) State {
		st.Drafts = replace(st.Drafts, post)
		if i := st.index(post.ID); i >= 0 {
			stored = st.Drafts[i]
		}
		return st
	})
	logging.Documents("Published post %s", id)
	if stored.ID == "" {
		stored = post
	}
	return stored, nil
}

// Remove deletes id. A post that is already gone counts as deleted. If the
// removed post was active, the most recently updated remaining post becomes
// active. On failure the collection is unchanged.
func (s *Store) Remove(ctx context.Context, token, id string) error {
	if err := s.api.DeletePost(ctx, token, id); err != nil {
		logging.Get(logging.CategoryDocuments).Warn("Remove of %s failed: %v", id, err)
		return types.Wrap(types.KindDelete, "remove", err)
	}

	s.state.Update(func(st State) State {
		i := st.index(id)
		if i < 0 {
			return st
		}
		drafts := make([]types.Post, 0, len(st.Drafts)-1)
		drafts = append(drafts, st.Drafts[:i]...)
		drafts = append(drafts, st.Drafts[i+1:]...)
		st.Drafts = drafts

		if st.ActiveID == id {
			next := mostRecent(drafts)
			if next < 0 {
				st.ActiveID, st.Pending = "", nil
			} else {
				st.ActiveID, st.Pending = drafts[next].ID, drafts[next].Pending()
			}
			st.SaveError = ""
		}
		return st
	})
	logging.Documents("Removed post %s", id)
	return nil
}

// Reset empties the store, as on logout.
func (s *Store) Reset() {
	s.state.Set(State{})
}

// replace swaps in the server's version of a post. A stored published
// status is never reverted. Posts no longer in the collection stay out.
func replace(drafts []types.Post, updated types.Post) []types.Post {
	out := make([]types.Post, len(drafts))
	copy(out, drafts)
	for i, p := range out {
		if p.ID == updated.ID {
			updated.Status = p.Status.Merge(updated.Status)
			out[i] = updated
			break
		}
	}
	return out
}

// mostRecent returns the index of the post with the latest UpdatedAt, the
// first one on ties, or -1.
func mostRecent(drafts []types.Post) int {
	best := -1
	for i, p := range drafts {
		if best < 0 || p.UpdatedAt.After(drafts[best].UpdatedAt.Time) {
			best = i
		}
	}
	return best
}

func dedupe(posts []types.Post) []types.Post {
	seen := make(map[string]bool, len(posts))
	out := make([]types.Post, 0, len(posts))
	for _, p := range posts {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
