package memory

import (
	"context"
	"testing"
)

func TestSessionRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	registry := NewSessionRegistry()

	ok, err := registry.Reserve(ctx, "ABCD")
	if err != nil || !ok {
		t.Fatalf("expected reservation, got ok=%v err=%v", ok, err)
	}
	if ok, _ := registry.Reserve(ctx, "ABCD"); ok {
		t.Fatalf("expected duplicate reservation to fail")
	}
	if live, _ := registry.Live(ctx, "ABCD"); !live {
		t.Fatalf("expected code live")
	}

	_ = registry.Release(ctx, "ABCD")
	if live, _ := registry.Live(ctx, "ABCD"); live {
		t.Fatalf("expected code released")
	}
	if ok, _ := registry.Reserve(ctx, "ABCD"); !ok {
		t.Fatalf("expected released code to be reusable")
	}
}
