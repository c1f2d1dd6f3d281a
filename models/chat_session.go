package models

import (
	"time"

	"gorm.io/gorm"
)

// Sender values for chat messages.
const (
	SenderOwner   = "owner"
	SenderScanner = "scanner"
)

// ChatSession is the session slot for a vehicle. At most one row per vehicle
// is active and unexpired at any time; a new scan reuses it until it expires
// or either party ends it.
type ChatSession struct {
	gorm.Model
	SessionID string    `gorm:"uniqueIndex;size:64;not null"`
	VehicleID uint      `gorm:"not null;index"`
	IsActive  bool      `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

// Expired reports whether the session's TTL has elapsed at the given instant.
func (s *ChatSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Live reports whether the session still accepts messages.
func (s *ChatSession) Live(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}
