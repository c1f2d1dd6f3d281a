package middleware

import (
	"testing"
	"time"
)

func TestDuplicateGuard(t *testing.T) {
	// speed up TTL for test
	SetDuplicateTTL(50 * time.Millisecond)
	key := "scanner@session-123"
	text := "Hello"

	// First call should allow
	if ok := DuplicateGuard(key, text); !ok {
		t.Fatalf("expected first call to pass duplicate guard")
	}
	// Immediate repeat should block
	if ok := DuplicateGuard(key, text); ok {
		t.Fatalf("expected immediate duplicate to be blocked")
	}
	// Different text should pass even within TTL
	if ok := DuplicateGuard(key, text+"!"); !ok {
		t.Fatalf("expected different text to pass within TTL")
	}
	// After TTL, same text should pass
	time.Sleep(70 * time.Millisecond)
	if ok := DuplicateGuard(key, text); !ok {
		t.Fatalf("expected same text to pass after TTL")
	}
}

func TestDuplicateGuardTrimsText(t *testing.T) {
	SetDuplicateTTL(time.Minute)
	key := "owner@session-456"

	if ok := DuplicateGuard(key, "hi there"); !ok {
		t.Fatalf("expected first call to pass")
	}
	// whitespace variations of the same text count as duplicates
	if ok := DuplicateGuard(key, "  hi there  "); ok {
		t.Fatalf("expected padded duplicate to be blocked")
	}
}
