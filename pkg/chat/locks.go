package chat

import "sync"

// keyedLocks hands out one in-process lock per key. Session creation holds
// the vehicle's lock so two near-simultaneous scans cannot both pass the
// "no active session" check; snapshot publication holds the session's lock
// so a slow read cannot overtake a newer one and deliver a stale snapshot.
type keyedLocks[K comparable] struct {
	mu    sync.Mutex
	slots map[K]chan struct{}
}

func newKeyedLocks[K comparable]() *keyedLocks[K] {
	return &keyedLocks[K]{slots: map[K]chan struct{}{}}
}

func (l *keyedLocks[K]) acquire(key K) (release func()) {
	l.mu.Lock()
	slot := l.slots[key]
	if slot == nil {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()
	slot <- struct{}{}
	return func() { <-slot }
}
