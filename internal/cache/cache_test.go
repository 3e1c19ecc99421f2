package cache

import (
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache reported a hit")
	}

	c.Set("k", 42, time.Minute)
	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Errorf("Get = %v, %v; want 42, true", v, ok)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("value survived Delete")
	}

	c.Set("a", "x", time.Minute)
	c.Set("b", "y", time.Minute)
	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Error("value survived Clear")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0)
	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry still readable")
	}
}

func TestDocKey(t *testing.T) {
	at := time.Date(2016, 9, 2, 12, 0, 0, 0, time.UTC)

	text := DocKey("text", "a1", at)
	concept := DocKey("concept", "a1", at)
	if text == concept {
		t.Error("kind tag does not separate keys")
	}
	if DocKey("text", "a1", at) != text {
		t.Error("key not deterministic")
	}
	if DocKey("text", "a1", at.Add(time.Second)) == text {
		t.Error("updated object reuses the old key")
	}
}
