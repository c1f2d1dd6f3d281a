package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatMessage is an append-only message in a session's log. Messages are
// never edited or individually deleted; they are retired with their session.
type ChatMessage struct {
	gorm.Model
	MessageID string    `gorm:"uniqueIndex;size:64;not null"`
	SessionID string    `gorm:"index;not null;size:64"`
	Sender    string    `gorm:"size:20;not null"` // "owner" or "scanner"
	Text      string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"not null"`
}
