package cache

import (
	"context"
	"testing"
)

func TestKeyDeterministic(t *testing.T) {
	a := Key("payload-one")
	b := Key("payload-one")
	c := Key("payload-two")

	if a != b {
		t.Error("identical payloads must produce identical keys")
	}
	if a == c {
		t.Error("different payloads must produce different keys")
	}
	if len(a) != len("analysis:")+64 {
		t.Errorf("unexpected key format: %q", a)
	}
}

func TestTieredWithoutRedis(t *testing.T) {
	c, err := NewTiered(4, nil, nil)
	if err != nil {
		t.Fatalf("NewTiered failed: %v", err)
	}
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(ctx, "k", "v")
	got, ok := c.Get(ctx, "k")
	if !ok || got != "v" {
		t.Fatalf("Get = (%q, %v), want (v, true)", got, ok)
	}
}

func TestTieredEviction(t *testing.T) {
	c, err := NewTiered(2, nil, nil)
	if err != nil {
		t.Fatalf("NewTiered failed: %v", err)
	}
	ctx := context.Background()

	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")
	c.Set(ctx, "c", "3")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if got, ok := c.Get(ctx, "c"); !ok || got != "3" {
		t.Errorf("newest entry missing: (%q, %v)", got, ok)
	}
}

func TestNilTiered(t *testing.T) {
	var c *Tiered
	ctx := context.Background()

	// A nil cache is a valid no-op.
	c.Set(ctx, "k", "v")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("nil cache should always miss")
	}
}
