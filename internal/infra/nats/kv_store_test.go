package nats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"trivia-live/internal/store"
)

func TestKeyEncodingRoundTrip(t *testing.T) {
	for _, segs := range [][]string{nil, {"sessions"}, {"sessions", "ABCD", "players", "Zoë & co"}} {
		key := encodeKey(segs)
		got, err := decodeKey(key)
		if err != nil {
			t.Fatalf("decode %q: %v", key, err)
		}
		if store.JoinPath(got) != store.JoinPath(segs) {
			t.Fatalf("round trip %v -> %q -> %v", segs, key, got)
		}
	}
	if _, err := decodeKey("not base64!"); err == nil {
		t.Fatalf("expected foreign key to be rejected")
	}
}

func TestKVStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	url := startNATS(t, ctx)

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	s, err := Connect(ctx, nc, "sessions_test", time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	defer s.Close()

	updates := make(chan store.Snapshot, 16)
	sub, err := s.Subscribe(ctx, "sessions/ABCD/players", func(snap store.Snapshot) { updates <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()
	if initial := next(t, updates); initial.Exists() {
		t.Fatalf("expected empty initial snapshot, got %v", initial.Value)
	}

	err = s.Write(ctx, "sessions/ABCD", map[string]any{
		"question": "Capital of France?",
		"players":  map[string]any{"Alice": map[string]any{"name": "Alice", "score": 1}},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := s.Read(ctx, "sessions/ABCD")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Child("question").Text() != "Capital of France?" || snap.Child("players/Alice/score").Int() != 1 {
		t.Fatalf("unexpected session %v", snap.Value)
	}

	// leaves land one by one, so intermediate snapshots may arrive first
	for got := next(t, updates); got.Child("Alice/score").Int() != 1 || got.Child("Alice/name").Text() != "Alice"; got = next(t, updates) {
	}

	if err := s.Update(ctx, "sessions/ABCD/players/Alice", map[string]any{"score": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if snap, _ := s.Read(ctx, "sessions/ABCD/players/Alice"); snap.Child("score").Exists() {
		t.Fatalf("expected score deleted, got %v", snap.Value)
	}

	if err := s.Write(ctx, "sessions/ABCD", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if snap, _ := s.Read(ctx, "sessions/ABCD"); snap.Exists() {
		t.Fatalf("expected session deleted, got %v", snap.Value)
	}
}

func startNATS(t *testing.T, ctx context.Context) string {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start nats: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("nats host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222/tcp")
	if err != nil {
		t.Fatalf("nats port: %v", err)
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func next(t *testing.T, ch <-chan store.Snapshot) store.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return store.Snapshot{}
}
