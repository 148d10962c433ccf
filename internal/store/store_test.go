package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestSplitPath(t *testing.T) {
	segs, err := SplitPath("/sessions/ABCD/players/Alice/")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if want := []string{"sessions", "ABCD", "players", "Alice"}; !reflect.DeepEqual(segs, want) {
		t.Fatalf("expected %v, got %v", want, segs)
	}
	if segs, err := SplitPath(""); err != nil || len(segs) != 0 {
		t.Fatalf("expected root, got %v (%v)", segs, err)
	}
	for _, bad := range []string{"a//b", "a/b.c", "a/#", "a/[0]"} {
		if _, err := SplitPath(bad); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("expected invalid path for %q, got %v", bad, err)
		}
	}
}

func TestTreeSetGetAndPrune(t *testing.T) {
	tree := NewTree()
	player, err := Normalize(map[string]any{"name": "Alice", "score": 0, "answer": "", "isCorrect": nil})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	tree.Set([]string{"sessions", "ABCD", "players", "Alice"}, player)
	tree.Set([]string{"sessions", "ABCD", "question"}, "Capital of France?")

	got := tree.Get([]string{"sessions", "ABCD", "players", "Alice"})
	want := map[string]any{"name": "Alice", "score": float64(0), "answer": ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	tree.Set([]string{"sessions", "ABCD", "players", "Alice"}, nil)
	if v := tree.Get([]string{"sessions", "ABCD", "players"}); v != nil {
		t.Fatalf("expected players pruned, got %v", v)
	}
	if v := tree.Get([]string{"sessions", "ABCD", "question"}); v != "Capital of France?" {
		t.Fatalf("expected sibling untouched, got %v", v)
	}
}

func TestTreeGetReturnsCopy(t *testing.T) {
	tree := NewTree()
	tree.Set([]string{"a", "b"}, "x")
	got := tree.Get([]string{"a"}).(map[string]any)
	got["b"] = "mutated"
	if v := tree.Get([]string{"a", "b"}); v != "x" {
		t.Fatalf("tree mutated through returned value: %v", v)
	}
}

func TestTreeWriteBeneathLeafReplacesIt(t *testing.T) {
	tree := NewTree()
	tree.Set([]string{"a"}, "leaf")
	tree.Set([]string{"a", "b"}, true)
	if v := tree.Get([]string{"a"}); !reflect.DeepEqual(v, map[string]any{"b": true}) {
		t.Fatalf("expected leaf replaced by subtree, got %v", v)
	}
}

func TestFlattenExpand(t *testing.T) {
	value, _ := Normalize(map[string]any{
		"question": "Q1",
		"players": map[string]any{
			"Alice": map[string]any{"score": 2, "answer": "Paris"},
		},
	})
	leaves := Flatten(value)
	if len(leaves) != 3 {
		t.Fatalf("expected 3 leaves, got %v", leaves)
	}
	if leaves["players/Alice/score"] != float64(2) {
		t.Fatalf("unexpected leaf map %v", leaves)
	}
	if back := Expand(leaves); !reflect.DeepEqual(back, value) {
		t.Fatalf("expand mismatch: %v vs %v", back, value)
	}
	if leaves := Flatten("solo"); leaves[""] != "solo" {
		t.Fatalf("expected top-level leaf keyed by empty path, got %v", leaves)
	}
}

func TestSnapshotAccessors(t *testing.T) {
	value, _ := Normalize(map[string]any{"timeForQuestion": 30, "question": "Q"})
	snap := Snapshot{Path: "sessions/ABCD", Value: value}
	if snap.Child("timeForQuestion").Int() != 30 {
		t.Fatalf("expected 30, got %v", snap.Child("timeForQuestion").Value)
	}
	if snap.Child("question").Text() != "Q" {
		t.Fatalf("expected Q")
	}
	if snap.Child("missing").Exists() {
		t.Fatalf("expected missing child")
	}
	if snap.Child("question").Path != "sessions/ABCD/question" {
		t.Fatalf("unexpected child path %q", snap.Child("question").Path)
	}
}

func TestFanoutDeliversOnlyOnChange(t *testing.T) {
	f := NewFanout()
	current := map[string]any{"players/Alice": "a1"}
	read := func(path string) (any, error) { return current[path], nil }

	got := make(chan Snapshot, 10)
	sub, err := f.Watch(context.Background(), "players/Alice", "a1", func(s Snapshot) { got <- s })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Cancel()

	expectSnapshot(t, got, "a1")

	// unrelated and unchanged writes are filtered
	_ = f.Notify([]string{"players/Bob"}, read)
	_ = f.Notify([]string{"players"}, read)
	current["players/Alice"] = "a2"
	_ = f.Notify([]string{"players/Alice/answer"}, read)
	expectSnapshot(t, got, "a2")

	select {
	case s := <-got:
		t.Fatalf("unexpected extra snapshot %v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanoutCancelStopsDelivery(t *testing.T) {
	f := NewFanout()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Snapshot, 10)
	_, err := f.Watch(ctx, "a", nil, func(s Snapshot) { got <- s })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	expectSnapshot(t, got, nil)

	cancel()
	deadline := time.Now().Add(time.Second)
	for f.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = f.Notify([]string{"a"}, func(string) (any, error) { return "x", nil })
	select {
	case s := <-got:
		t.Fatalf("unexpected snapshot after cancel %v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectSnapshot(t *testing.T, ch <-chan Snapshot, want any) {
	t.Helper()
	select {
	case s := <-ch:
		if !reflect.DeepEqual(s.Value, want) {
			t.Fatalf("expected %v, got %v", want, s.Value)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}
