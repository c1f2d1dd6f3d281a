package chat

import (
	"context"
	"log"
	"time"

	"pingme/models"
)

// StartSweeper runs a background loop that deactivates sessions whose TTL has
// elapsed and notifies vehicle watchers, so the owner chat list converges even
// when no chat view is open for the session. It returns when ctx is done.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	now := time.Now()
	var expired []models.ChatSession
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Find(&expired).Error
	if err != nil {
		log.Printf("[sweep] query error: %v", err)
		return
	}
	for _, sess := range expired {
		if err := s.EndSession(ctx, sess.VehicleID, sess.SessionID); err != nil {
			log.Printf("[sweep] end session %s: %v", sess.SessionID, err)
		}
	}
	if len(expired) > 0 {
		log.Printf("[sweep] expired %d session(s)", len(expired))
	}
}
