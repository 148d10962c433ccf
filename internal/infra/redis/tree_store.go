package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"trivia-live/internal/store"
)

const (
	leafPrefix     = "tree:"
	changesChannel = "tree:changes"
	scanCount      = 100
)

// TreeStore implements store.Store on Redis so that hosts and players on
// different instances share sessions.
//
// Every leaf of the tree is a key (tree:<path>) holding its JSON value. Writes
// replace all leaves under a path in one MULTI/EXEC and then publish the
// changed paths on tree:changes; every instance re-reads its subscribed paths
// when a change message arrives. Leaves expire after ttl when it is positive,
// which clears sessions nobody writes to anymore.
type TreeStore struct {
	client *redis.Client
	ttl    time.Duration
	fanout *store.Fanout
	log    zerolog.Logger

	startOnce sync.Once
	startErr  error
	pubsub    *redis.PubSub
	done      chan struct{}
}

func NewTreeStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *TreeStore {
	return &TreeStore{
		client: client,
		ttl:    ttl,
		fanout: store.NewFanout(),
		log:    logger,
		done:   make(chan struct{}),
	}
}

func (s *TreeStore) Read(ctx context.Context, path string) (store.Snapshot, error) {
	segs, err := store.SplitPath(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	joined := store.JoinPath(segs)
	leaves, err := s.leaves(ctx, joined)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Path: joined, Value: store.Expand(leaves)}, nil
}

func (s *TreeStore) Write(ctx context.Context, path string, value any) error {
	return s.Update(ctx, "", map[string]any{path: value})
}

func (s *TreeStore) Update(ctx context.Context, path string, values map[string]any) error {
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

	// a multi-path update below a base path lists the base once and filters
	// per change instead of scanning the keyspace for every child
	var baseKeys []string
	sharedScan := len(changes) > 1 && len(base) > 0
	if sharedScan {
		if baseKeys, err = s.keysUnder(ctx, store.JoinPath(base)); err != nil {
			return err
		}
	}

	// pending holds the final state of every touched key, nil meaning delete
	pending := make(map[string]any)
	changed := make([]string, 0, len(changes))
	for _, c := range changes {
		p := store.JoinPath(c.segs)
		changed = append(changed, p)

		for i := 0; i < len(c.segs); i++ {
			pending[leafKey(store.JoinPath(c.segs[:i]))] = nil
		}
		var existing []string
		if sharedScan {
			for _, k := range baseKeys {
				if under(k, p) {
					existing = append(existing, k)
				}
			}
		} else if existing, err = s.keysUnder(ctx, p); err != nil {
			return err
		}
		for _, k := range existing {
			pending[k] = nil
		}
		for k, v := range pending {
			if v != nil && under(k, p) {
				pending[k] = nil
			}
		}
		for rel, leaf := range store.Flatten(c.value) {
			pending[leafKey(joinRel(p, rel))] = leaf
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range pending {
			if v == nil {
				pipe.Del(ctx, k)
				continue
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrInvalidValue, err)
			}
			pipe.Set(ctx, k, raw, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", path, err)
	}

	if err := s.client.Publish(ctx, changesChannel, strings.Join(changed, "\n")).Err(); err != nil {
		return fmt.Errorf("redis publish change: %w", err)
	}
	return nil
}

func (s *TreeStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (*store.Subscription, error) {
	if err := s.start(); err != nil {
		return nil, err
	}
	// read after the change channel is live so no write slips between
	snap, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.fanout.Watch(ctx, snap.Path, snap.Value, fn)
}

// Close stops the change listener. Subscriptions stop receiving updates.
func (s *TreeStore) Close() error {
	if s.pubsub == nil {
		return nil
	}
	err := s.pubsub.Close()
	<-s.done
	return err
}

func (s *TreeStore) start() error {
	s.startOnce.Do(func() {
		ctx := context.Background()
		pubsub := s.client.Subscribe(ctx, changesChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			s.startErr = fmt.Errorf("redis subscribe %s: %w", changesChannel, err)
			close(s.done)
			return
		}
		s.pubsub = pubsub
		go s.dispatch(pubsub.Channel())
	})
	return s.startErr
}

func (s *TreeStore) dispatch(ch <-chan *redis.Message) {
	defer close(s.done)
	ctx := context.Background()
	for msg := range ch {
		paths := strings.Split(msg.Payload, "\n")
		err := s.fanout.Notify(paths, func(p string) (any, error) {
			snap, err := s.Read(ctx, p)
			return snap.Value, err
		})
		if err != nil {
			s.log.Error().Err(err).Strs("paths", paths).Msg("redis change notification")
		}
	}
}

// leaves returns the stored leaves at or below path keyed relative to it.
func (s *TreeStore) leaves(ctx context.Context, path string) (map[string]any, error) {
	keys, err := s.keysUnder(ctx, path)
	if err != nil {
		return nil, err
	}
	leaves := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return leaves, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", path, err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		leaves[relTo(path, strings.TrimPrefix(keys[i], leafPrefix))] = decoded
	}
	return leaves, nil
}

// keysUnder lists the leaf keys at or below path. The exact key is always
// included; MGET reports it as missing when absent.
func (s *TreeStore) keysUnder(ctx context.Context, path string) ([]string, error) {
	var keys []string
	match := leafPrefix + "*"
	if path != "" {
		keys = append(keys, leafKey(path))
		match = leafPrefix + escapeGlob(path) + "/*"
	}
	iter := s.client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", path, err)
	}
	return keys, nil
}

func leafKey(path string) string {
	return leafPrefix + path
}

func under(key, path string) bool {
	p := strings.TrimPrefix(key, leafPrefix)
	return path == "" || p == path || strings.HasPrefix(p, path+"/")
}

func joinRel(base, rel string) string {
	switch {
	case rel == "":
		return base
	case base == "":
		return rel
	default:
		return base + "/" + rel
	}
}

func relTo(base, full string) string {
	switch {
	case base == "":
		return full
	case full == base:
		return ""
	default:
		return strings.TrimPrefix(full, base+"/")
	}
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
