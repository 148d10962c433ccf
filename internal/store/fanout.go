package store

import (
	"context"
	"reflect"
	"sync"
)

// watcherBuffer bounds the snapshots queued for a slow callback. Only the most
// recent snapshot matters, so the oldest is dropped when the buffer is full.
const watcherBuffer = 8

// Fanout tracks subscriptions for an adapter and delivers snapshots to them.
// Adapters call Notify after a write has landed; each watcher is re-read and
// receives a snapshot only when its value actually changed.
type Fanout struct {
	mu       sync.RWMutex
	watchers map[*watcher]struct{}
}

type watcher struct {
	path string
	segs []string
	fn   func(Snapshot)
	ch   chan Snapshot
	done chan struct{}

	mu     sync.Mutex
	last   any
	closed bool
}

// NewFanout returns an empty registry.
func NewFanout() *Fanout {
	return &Fanout{watchers: make(map[*watcher]struct{})}
}

// Watch registers fn for path and queues the initial snapshot. The
// subscription ends on Cancel or when ctx is done.
func (f *Fanout) Watch(ctx context.Context, path string, initial any, fn func(Snapshot)) (*Subscription, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	w := &watcher{
		path: JoinPath(segs),
		segs: segs,
		fn:   fn,
		ch:   make(chan Snapshot, watcherBuffer),
		done: make(chan struct{}),
		last: initial,
	}
	w.ch <- Snapshot{Path: w.path, Value: initial}

	f.mu.Lock()
	f.watchers[w] = struct{}{}
	f.mu.Unlock()

	sub := NewSubscription(func() {
		f.mu.Lock()
		delete(f.watchers, w)
		f.mu.Unlock()
		w.close()
	})

	go w.deliver()
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-w.done:
		}
	}()
	return sub, nil
}

// Len returns the number of live subscriptions.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.watchers)
}

// Notify re-reads every watcher overlapping one of the changed paths.
// read is called at most once per distinct watched path.
func (f *Fanout) Notify(changed []string, read func(path string) (any, error)) error {
	changedSegs := make([][]string, 0, len(changed))
	for _, c := range changed {
		segs, err := SplitPath(c)
		if err != nil {
			return err
		}
		changedSegs = append(changedSegs, segs)
	}

	f.mu.RLock()
	affected := make([]*watcher, 0, len(f.watchers))
	for w := range f.watchers {
		for _, c := range changedSegs {
			if Overlaps(w.segs, c) {
				affected = append(affected, w)
				break
			}
		}
	}
	f.mu.RUnlock()

	values := make(map[string]any, len(affected))
	var firstErr error
	for _, w := range affected {
		v, ok := values[w.path]
		if !ok {
			var err error
			v, err = read(w.path)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			values[w.path] = v
		}
		w.offer(v)
	}
	return firstErr
}

func (w *watcher) offer(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || reflect.DeepEqual(w.last, v) {
		return
	}
	w.last = v
	snap := Snapshot{Path: w.path, Value: deepCopy(v)}
	select {
	case w.ch <- snap:
	default:
		select {
		case <-w.ch:
		default:
		}
		w.ch <- snap
	}
}

func (w *watcher) deliver() {
	for {
		select {
		case <-w.done:
			return
		case snap := <-w.ch:
			select {
			case <-w.done:
				return
			default:
			}
			w.fn(snap)
		}
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
}
