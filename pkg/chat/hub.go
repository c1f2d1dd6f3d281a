package chat

import (
	"sync"
	"time"

	"pingme/models"
)

// SessionState is what vehicle watchers receive: the current content of the
// vehicle's session slot. A zero SessionID means no session exists.
type SessionState struct {
	VehicleID uint
	SessionID string
	IsActive  bool
	ExpiresAt time.Time
}

// Live reports whether the state describes an active, unexpired session.
func (st SessionState) Live(now time.Time) bool {
	return st.SessionID != "" && st.IsActive && st.ExpiresAt.After(now)
}

// hub tracks live observers: message-snapshot subscribers per session and
// session-state watchers per vehicle. Callbacks are invoked outside the hub
// lock, so a slow subscriber cannot block registration.
type hub struct {
	mu          sync.RWMutex
	nextID      uint64
	sessionSubs map[string]map[uint64]func([]models.ChatMessage)
	vehicleSubs map[uint]map[uint64]func(SessionState)
}

func newHub() *hub {
	return &hub{
		sessionSubs: make(map[string]map[uint64]func([]models.ChatMessage)),
		vehicleSubs: make(map[uint]map[uint64]func(SessionState)),
	}
}

// subscribeSession registers fn for message snapshots of sessionID. The
// returned cancel is idempotent and leaves other subscribers untouched.
func (h *hub) subscribeSession(sessionID string, fn func([]models.ChatMessage)) (cancel func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	subs := h.sessionSubs[sessionID]
	if subs == nil {
		subs = make(map[uint64]func([]models.ChatMessage))
		h.sessionSubs[sessionID] = subs
	}
	subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		if subs, ok := h.sessionSubs[sessionID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.sessionSubs, sessionID)
			}
		}
		h.mu.Unlock()
	}
}

// watchVehicle registers fn for session-state changes of vehicleID.
func (h *hub) watchVehicle(vehicleID uint, fn func(SessionState)) (cancel func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	subs := h.vehicleSubs[vehicleID]
	if subs == nil {
		subs = make(map[uint64]func(SessionState))
		h.vehicleSubs[vehicleID] = subs
	}
	subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		if subs, ok := h.vehicleSubs[vehicleID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.vehicleSubs, vehicleID)
			}
		}
		h.mu.Unlock()
	}
}

// publishMessages delivers the full snapshot to every session subscriber.
func (h *hub) publishMessages(sessionID string, msgs []models.ChatMessage) {
	h.mu.RLock()
	fns := make([]func([]models.ChatMessage), 0, len(h.sessionSubs[sessionID]))
	for _, fn := range h.sessionSubs[sessionID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(msgs)
	}
}

// publishState delivers the vehicle's session state to every watcher.
func (h *hub) publishState(st SessionState) {
	h.mu.RLock()
	fns := make([]func(SessionState), 0, len(h.vehicleSubs[st.VehicleID]))
	for _, fn := range h.vehicleSubs[st.VehicleID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(st)
	}
}
