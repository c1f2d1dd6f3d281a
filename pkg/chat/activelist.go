package chat

import (
	"sort"
	"sync"
	"time"
)

// ActiveChat is one entry in an owner's active-chat list.
type ActiveChat struct {
	VehicleID   uint      `json:"vehicle_id"`
	SessionID   string    `json:"session_id"`
	PlateNumber string    `json:"plate_number"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ActiveList maintains the owner chat list from per-vehicle watch events:
// a live session inserts or refreshes the vehicle's entry, anything else
// removes it. Display order is not a contract; Entries sorts by vehicle id
// only to keep output deterministic.
type ActiveList struct {
	mu      sync.Mutex
	entries map[uint]ActiveChat
}

func NewActiveList() *ActiveList {
	return &ActiveList{entries: map[uint]ActiveChat{}}
}

// Apply folds one watch event into the list and reports whether the list
// changed.
func (l *ActiveList) Apply(st SessionState, plateNumber string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st.Live(time.Now()) {
		prev, ok := l.entries[st.VehicleID]
		next := ActiveChat{
			VehicleID:   st.VehicleID,
			SessionID:   st.SessionID,
			PlateNumber: plateNumber,
			ExpiresAt:   st.ExpiresAt,
		}
		if ok && prev == next {
			return false
		}
		l.entries[st.VehicleID] = next
		return true
	}

	if _, ok := l.entries[st.VehicleID]; !ok {
		return false
	}
	delete(l.entries, st.VehicleID)
	return true
}

// Entries returns a copy of the current list.
func (l *ActiveList) Entries() []ActiveChat {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ActiveChat, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}
