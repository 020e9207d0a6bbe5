package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestCache_PutGet(t *testing.T) {
	c := New(10, time.Minute)

	c.Put("k1", "v1")

	value, found := c.Get("k1")
	if !found {
		t.Fatal("expected hit for k1")
	}
	if value != "v1" {
		t.Errorf("expected v1, got %v", value)
	}

	if _, found := c.Get("missing"); found {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("k1", "v1")

	// Внутри TTL — hit
	c.now = func() time.Time { return now.Add(59 * time.Second) }
	if _, found := c.Get("k1"); !found {
		t.Error("expected hit within TTL")
	}

	// t0 + ttl + ε — miss
	c.now = func() time.Time { return now.Add(time.Minute + time.Millisecond) }
	if _, found := c.Get("k1"); found {
		t.Error("expected miss after TTL")
	}

	// Просроченная запись должна быть лениво удалена
	if c.Len() != 0 {
		t.Errorf("expected expired entry purged, len=%d", c.Len())
	}
}

func TestCache_CapacityBound(t *testing.T) {
	const capacity = 5
	c := New(capacity, time.Minute)

	for i := 0; i < capacity+1; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}

	if c.Len() > capacity {
		t.Errorf("expected at most %d entries, got %d", capacity, c.Len())
	}

	// FIFO: вытеснен самый старый ключ
	if _, found := c.Get("k0"); found {
		t.Error("expected oldest key evicted")
	}
	if _, found := c.Get("k5"); !found {
		t.Error("expected newest key resident")
	}
}

func TestCache_FIFONotLRU(t *testing.T) {
	c := New(2, time.Minute)

	c.Put("k1", 1)
	c.Put("k2", 2)

	// Чтение k1 НЕ должно продвигать его
	c.Get("k1")

	c.Put("k3", 3)

	if _, found := c.Get("k1"); found {
		t.Error("k1 should be evicted despite recent read (FIFO, not LRU)")
	}
	if _, found := c.Get("k2"); !found {
		t.Error("k2 should be resident")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New(10, time.Minute)

	c.Put("k1", "v1")

	if !c.Invalidate("k1") {
		t.Error("expected invalidate to report removal")
	}
	if c.Invalidate("k1") {
		t.Error("second invalidate should be a no-op")
	}
	if _, found := c.Get("k1"); found {
		t.Error("expected miss after invalidate")
	}
}

func TestCache_OverwriteKeepsInsertionOrder(t *testing.T) {
	c := New(2, time.Minute)

	c.Put("k1", 1)
	c.Put("k2", 2)
	c.Put("k1", 10) // supersede

	value, found := c.Get("k1")
	if !found || value != 10 {
		t.Fatalf("expected overwritten value 10, got %v (found=%v)", value, found)
	}

	// k1 остаётся самым старым по порядку вставки
	c.Put("k3", 3)
	if _, found := c.Get("k1"); found {
		t.Error("k1 should be evicted first after overwrite")
	}
}

func TestCache_Utilization(t *testing.T) {
	c := New(4, time.Minute)
	c.Put("k1", 1)
	c.Put("k2", 2)

	if got := c.Utilization(); got != 0.5 {
		t.Errorf("expected utilization 0.5, got %v", got)
	}
}
