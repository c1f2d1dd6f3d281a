package cache

import (
	"testing"
	"time"
)

func TestSetGetAndExpire(t *testing.T) {
	c := Default()
	key := KeyFromStrings("unit", "expire", time.Now().String())

	// ensure no value
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected no value initially")
	}

	// set with ttl
	c.Set(key, "hello", time.Second)
	if v, ok := c.Get(key); !ok || v.(string) != "hello" {
		t.Fatalf("expected value 'hello', got %v ok=%v", v, ok)
	}

	// wait for expiry; exp has second granularity
	time.Sleep(2100 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected expired value to be gone")
	}
}

func TestDelete(t *testing.T) {
	c := Default()
	key := KeyFromStrings("unit", "delete", time.Now().String())
	c.Set(key, 42, time.Minute)
	if v, ok := c.Get(key); !ok || v.(int) != 42 {
		t.Fatalf("expected 42 present before delete, got %v ok=%v", v, ok)
	}
	c.Delete(key)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected deleted value to be absent")
	}
}

func TestKeyFromStringsStability(t *testing.T) {
	k1 := KeyFromStrings("scan", "token-a")
	k2 := KeyFromStrings("scan", "token-a")
	if k1 != k2 {
		t.Fatalf("expected same inputs to yield same key")
	}
	k3 := KeyFromStrings("scan", "token-b")
	if k1 == k3 {
		t.Fatalf("expected different inputs to yield different key")
	}
}
