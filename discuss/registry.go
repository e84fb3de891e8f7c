package discuss

import (
	"context"
	"sync"
)

// Registry hands out one shared CommentStore per scope, so every consumer of
// a scope observes the same speculative state. It is owned by the
// application's composition root.
type Registry struct {
	transport Transport
	notifier  Notifier
	cfg       Config

	mu     sync.Mutex
	stores map[Scope]*CommentStore
}

func NewRegistry(transport Transport, notifier Notifier, cfg Config) *Registry {
	return &Registry{
		transport: transport,
		notifier:  notifier,
		cfg:       cfg,
		stores:    make(map[Scope]*CommentStore),
	}
}

// Store returns the store of (contentID, contentType), creating it on first use.
func (r *Registry) Store(contentID, contentType string) *CommentStore {
	scope := Scope{ContentID: contentID, ContentType: contentType}

	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[scope]
	if !ok {
		store = NewCommentStore(scope, r.transport, r.notifier, r.cfg)
		r.stores[scope] = store
	}

	return store
}

func (r *Registry) GetThreaded(ctx context.Context, contentID, contentType string) []*ThreadedComment {
	return r.Store(contentID, contentType).GetThreaded(ctx)
}

func (r *Registry) GetStats(contentID, contentType string) CommentStats {
	return r.Store(contentID, contentType).GetStats()
}

// Wait blocks until every store has settled its in-flight mutations.
func (r *Registry) Wait() {
	r.mu.Lock()

	stores := make([]*CommentStore, 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}

	r.mu.Unlock()

	for _, store := range stores {
		store.Wait()
	}
}
