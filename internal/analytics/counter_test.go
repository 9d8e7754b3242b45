package analytics

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCounterPutGet(t *testing.T) {
	ctx := context.Background()
	counter := NewMemoryCounter()

	if _, ok, err := counter.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key should report absent: ok=%v err=%v", ok, err)
	}
	if err := counter.Put(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	val, ok, err := counter.Get(ctx, "k")
	if err != nil || !ok || val != "v" {
		t.Fatalf("Get = %q %v %v", val, ok, err)
	}
}

func TestMemoryCounterTTL(t *testing.T) {
	ctx := context.Background()
	counter := NewMemoryCounter()
	current := time.Now()
	counter.now = func() time.Time { return current }

	if err := counter.Put(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, ok, _ := counter.Get(ctx, "k"); !ok {
		t.Fatalf("value should be present before expiry")
	}
	current = current.Add(2 * time.Minute)
	if _, ok, _ := counter.Get(ctx, "k"); ok {
		t.Fatalf("value should expire after the TTL")
	}
}

func TestMemoryCounterIncr(t *testing.T) {
	ctx := context.Background()
	counter := NewMemoryCounter()

	for want := int64(1); want <= 3; want++ {
		got, err := counter.Incr(ctx, "hits")
		if err != nil || got != want {
			t.Fatalf("Incr = %d %v, want %d", got, err, want)
		}
	}
	val, ok, err := counter.Get(ctx, "hits")
	if err != nil || !ok || val != "3" {
		t.Fatalf("Get after Incr = %q %v %v", val, ok, err)
	}
}
