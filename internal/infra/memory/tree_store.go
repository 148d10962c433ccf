package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-live/internal/store"
)

// TreeStore is an in-process implementation of store.Store. It backs single
// instance deployments and every test that does not need a real broker.
type TreeStore struct {
	mu     sync.Mutex
	tree   *store.Tree
	fanout *store.Fanout
}

func NewTreeStore() *TreeStore {
	return &TreeStore{
		tree:   store.NewTree(),
		fanout: store.NewFanout(),
	}
}

func (s *TreeStore) Read(ctx context.Context, path string) (store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Snapshot{Path: store.JoinPath(segs), Value: s.tree.Get(segs)}, nil
}

func (s *TreeStore) Write(ctx context.Context, path string, value any) error {
	return s.Update(ctx, "", map[string]any{path: value})
}

func (s *TreeStore) Update(ctx context.Context, path string, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base, err := store.SplitPath(path)
	if err != nil {
		return err
	}

	type change struct {
		segs  []string
		value any
	}
	changes := make([]change, 0, len(values))
	for rel, v := range values {
		segs, err := store.SplitPath(rel)
		if err != nil {
			return err
		}
		normalized, err := store.Normalize(v)
		if err != nil {
			return err
		}
		changes = append(changes, change{segs: append(append([]string(nil), base...), segs...), value: normalized})
	}
	sort.Slice(changes, func(i, j int) bool {
		return store.JoinPath(changes[i].segs) < store.JoinPath(changes[j].segs)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]string, 0, len(changes))
	for _, c := range changes {
		s.tree.Set(c.segs, c.value)
		changed = append(changed, store.JoinPath(c.segs))
	}
	// notifications are queued under the lock so every watcher sees writes in commit order
	return s.fanout.Notify(changed, func(p string) (any, error) {
		segs, _ := store.SplitPath(p)
		return s.tree.Get(segs), nil
	})
}

func (s *TreeStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (*store.Subscription, error) {
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanout.Watch(ctx, path, s.tree.Get(segs), fn)
}

// Subscribers returns the number of live subscriptions.
func (s *TreeStore) Subscribers() int {
	return s.fanout.Len()
}
