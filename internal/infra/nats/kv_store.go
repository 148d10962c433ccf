// Package nats implements the realtime store on a NATS JetStream key-value
// bucket.
package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"trivia-live/internal/store"
)

// rootKey holds a leaf written at the root path. Encoded segments are never
// shorter than two characters, so it cannot collide.
const rootKey = "_"

// KVStore implements store.Store on a JetStream KV bucket. Each leaf of the
// tree is one key; path segments are base64url encoded and joined with dots so
// that any segment is a valid key token. Keys expire after the bucket TTL.
//
// JetStream has no multi-key transactions, so a subscriber may observe the
// intermediate states of a multi-leaf write.
type KVStore struct {
	kv     jetstream.KeyValue
	fanout *store.Fanout
	log    zerolog.Logger

	startOnce sync.Once
	startErr  error
	watcher   jetstream.KeyWatcher
	cancel    context.CancelFunc
	done      chan struct{}
}

// Connect creates (or updates) the bucket and returns a store on it.
func Connect(ctx context.Context, nc *nats.Conn, bucket string, ttl time.Duration, logger zerolog.Logger) (*KVStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "live quiz sessions",
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return NewKVStore(kv, logger), nil
}

func NewKVStore(kv jetstream.KeyValue, logger zerolog.Logger) *KVStore {
	return &KVStore{
		kv:     kv,
		fanout: store.NewFanout(),
		log:    logger,
		done:   make(chan struct{}),
	}
}

func (s *KVStore) Read(ctx context.Context, path string) (store.Snapshot, error) {
	segs, err := store.SplitPath(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	leaves := make(map[string]any)
	err = s.scan(ctx, subtreeFilters(segs), false, func(e jetstream.KeyValueEntry) error {
		leafSegs, err := decodeKey(e.Key())
		if err != nil {
			return err
		}
		var v any
		if err := json.Unmarshal(e.Value(), &v); err != nil {
			return fmt.Errorf("decode %s: %w", store.JoinPath(leafSegs), err)
		}
		leaves[store.JoinPath(leafSegs[len(segs):])] = v
		return nil
	})
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Path: store.JoinPath(segs), Value: store.Expand(leaves)}, nil
}

func (s *KVStore) Write(ctx context.Context, path string, value any) error {
	return s.Update(ctx, "", map[string]any{path: value})
}

func (s *KVStore) Update(ctx context.Context, path string, values map[string]any) error {
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

	// pending holds the final state of every touched key, nil meaning delete
	pending := make(map[string][]byte)
	for _, c := range changes {
		filters := subtreeFilters(c.segs)
		for i := 0; i < len(c.segs); i++ {
			filters = append(filters, encodeKey(c.segs[:i]))
		}
		err := s.scan(ctx, filters, true, func(e jetstream.KeyValueEntry) error {
			pending[e.Key()] = nil
			return nil
		})
		if err != nil {
			return err
		}
		prefix := encodeKey(c.segs)
		for k, v := range pending {
			if v != nil && (len(c.segs) == 0 || k == prefix || strings.HasPrefix(k, prefix+".")) {
				pending[k] = nil
			}
		}
		for rel, leaf := range store.Flatten(c.value) {
			relSegs, _ := store.SplitPath(rel)
			raw, err := json.Marshal(leaf)
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrInvalidValue, err)
			}
			pending[encodeKey(append(append([]string(nil), c.segs...), relSegs...))] = raw
		}
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if raw := pending[k]; raw != nil {
			if _, err := s.kv.Put(ctx, k, raw); err != nil {
				return fmt.Errorf("kv put: %w", err)
			}
			continue
		}
		if err := s.kv.Delete(ctx, k); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("kv delete: %w", err)
		}
	}
	return nil
}

func (s *KVStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (*store.Subscription, error) {
	if err := s.start(); err != nil {
		return nil, err
	}
	snap, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.fanout.Watch(ctx, snap.Path, snap.Value, fn)
}

// Close stops the bucket watcher.
func (s *KVStore) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

func (s *KVStore) start() error {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		w, err := s.kv.WatchAll(ctx, jetstream.UpdatesOnly())
		if err != nil {
			cancel()
			s.startErr = fmt.Errorf("kv watch: %w", err)
			close(s.done)
			return
		}
		s.watcher, s.cancel = w, cancel
		go s.dispatch(ctx)
	})
	return s.startErr
}

func (s *KVStore) dispatch(ctx context.Context) {
	defer close(s.done)
	defer s.watcher.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-s.watcher.Updates():
			if !ok {
				return
			}
			if e == nil {
				continue
			}
			segs, err := decodeKey(e.Key())
			if err != nil {
				s.log.Warn().Err(err).Str("key", e.Key()).Msg("skip foreign kv key")
				continue
			}
			err = s.fanout.Notify([]string{store.JoinPath(segs)}, func(p string) (any, error) {
				snap, err := s.Read(ctx, p)
				return snap.Value, err
			})
			if err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Str("path", store.JoinPath(segs)).Msg("kv change notification")
			}
		}
	}
}

// scan calls fn for every live key matching one of filters.
func (s *KVStore) scan(ctx context.Context, filters []string, metaOnly bool, fn func(jetstream.KeyValueEntry) error) error {
	opts := []jetstream.WatchOpt{jetstream.IgnoreDeletes()}
	if metaOnly {
		opts = append(opts, jetstream.MetaOnly())
	}
	w, err := s.kv.WatchFiltered(ctx, filters, opts...)
	if err != nil {
		return fmt.Errorf("kv scan: %w", err)
	}
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-w.Updates():
			if !ok || e == nil {
				return nil
			}
			if err := fn(e); err != nil {
				return err
			}
		}
	}
}

func subtreeFilters(segs []string) []string {
	if len(segs) == 0 {
		return []string{">"}
	}
	key := encodeKey(segs)
	return []string{key, key + ".>"}
}

func encodeKey(segs []string) string {
	if len(segs) == 0 {
		return rootKey
	}
	parts := make([]string, len(segs))
	for i, seg := range segs {
		parts[i] = base64.RawURLEncoding.EncodeToString([]byte(seg))
	}
	return strings.Join(parts, ".")
}

func decodeKey(key string) ([]string, error) {
	if key == rootKey {
		return nil, nil
	}
	parts := strings.Split(key, ".")
	segs := make([]string, len(parts))
	for i, p := range parts {
		raw, err := base64.RawURLEncoding.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q", store.ErrInvalidPath, key)
		}
		segs[i] = string(raw)
	}
	return segs, nil
}
