// Package store defines the realtime key-value tree that host and player
// clients synchronise through, plus helpers shared by its adapters.
//
// Paths are slash separated ("sessions/ABCD/players/Alice"). Values are JSON
// shaped: strings, float64 numbers, bools, slices and nested maps. Writing nil
// deletes a subtree and empty maps are pruned, so a missing path reads as nil.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	// ErrInvalidPath is returned for empty or malformed path segments.
	ErrInvalidPath = errors.New("invalid store path")
	// ErrInvalidValue is returned when a value cannot be stored at a path.
	ErrInvalidValue = errors.New("invalid store value")
)

// Store is the capability injected into host controllers and player clients.
type Store interface {
	// Read returns the current value of the subtree at path.
	Read(ctx context.Context, path string) (Snapshot, error)
	// Write replaces the subtree at path (last write wins).
	Write(ctx context.Context, path string, value any) error
	// Update writes several children of path, keyed by relative path, in one call.
	Update(ctx context.Context, path string, values map[string]any) error
	// Subscribe calls fn with the current value of path and again whenever
	// any descendant changes. Callbacks for one subscription never overlap.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (*Subscription, error)
}

// Snapshot is the value of a path at a point in time.
type Snapshot struct {
	Path  string
	Value any
}

// Exists reports whether anything is stored at the path.
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Text returns the value as a string, or "" for other types.
func (s Snapshot) Text() string {
	v, _ := s.Value.(string)
	return v
}

// Int returns the value as an int, or 0 for non-numeric values.
func (s Snapshot) Int() int {
	switch v := s.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Child returns the snapshot of a direct or nested child.
func (s Snapshot) Child(rel string) Snapshot {
	segs, err := SplitPath(rel)
	if err != nil {
		return Snapshot{Path: s.Path + "/" + rel}
	}
	return Snapshot{Path: JoinPath(append(mustSplit(s.Path), segs...)), Value: lookup(s.Value, segs)}
}

// Decode converts the snapshot value into dst via its JSON form.
func (s Snapshot) Decode(dst any) error {
	raw, err := json.Marshal(s.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Subscription is an owned handle to a change subscription.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps the release function of an adapter.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel stops delivery. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func mustSplit(path string) []string {
	segs, _ := SplitPath(path)
	return segs
}
