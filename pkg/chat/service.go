package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pingme/models"
)

// Service owns the chat session lifecycle for all vehicles: get-or-create,
// remaining-time projection, message relay with live fan-out, and teardown.
// All reads and writes go through the shared store; observers see it
// eventually through snapshot callbacks.
type Service struct {
	db       *gorm.DB
	ttl      time.Duration
	hub      *hub
	locks    *keyedLocks[uint]   // serializes session creation per vehicle
	pubLocks *keyedLocks[string] // serializes snapshot read+publish per session
}

func NewService(db *gorm.DB, ttl time.Duration) *Service {
	return &Service{
		db:       db,
		ttl:      ttl,
		hub:      newHub(),
		locks:    newKeyedLocks[uint](),
		pubLocks: newKeyedLocks[string](),
	}
}

// TTL returns the configured session duration.
func (s *Service) TTL() time.Duration { return s.ttl }

// GetOrCreateSession returns the id of the vehicle's active, unexpired
// session, creating one when none exists. Creation is serialized per vehicle;
// repeated calls before expiry return the same id.
func (s *Service) GetOrCreateSession(ctx context.Context, vehicleID uint) (string, error) {
	release := s.locks.acquire(vehicleID)
	defer release()

	now := time.Now()
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND is_active = ? AND expires_at > ?", vehicleID, true, now).
		Order("id DESC").
		First(&sess).Error
	if err == nil {
		return sess.SessionID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: lookup: %v", ErrSessionInit, err)
	}

	sess = models.ChatSession{
		SessionID: uuid.NewString(),
		VehicleID: vehicleID,
		IsActive:  true,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return "", fmt.Errorf("%w: create: %v", ErrSessionInit, err)
	}

	s.hub.publishState(SessionState{
		VehicleID: vehicleID,
		SessionID: sess.SessionID,
		IsActive:  true,
		ExpiresAt: sess.ExpiresAt,
	})
	return sess.SessionID, nil
}

// TimeRemaining projects the minutes left on the vehicle's active session,
// rounded up and clamped at zero. It is recomputed on every call, never
// cached, so it cannot drift from the stored expiry.
func (s *Service) TimeRemaining(ctx context.Context, vehicleID uint) (int, error) {
	now := time.Now()
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND is_active = ?", vehicleID, true).
		Order("id DESC").
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: lookup: %v", ErrSessionInit, err)
	}
	return MinutesUntil(sess.ExpiresAt, now), nil
}

// MinutesUntil is the projection the countdown shows: minutes until expiry,
// rounded up, never negative.
func MinutesUntil(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	mins := int(left / time.Minute)
	if left%time.Minute != 0 {
		mins++
	}
	return mins
}

// SendMessage appends a message to an active session and fans the updated
// snapshot out to all subscribers. A send that lands after the session was
// ended or expired fails validation rather than succeeding silently.
func (s *Service) SendMessage(ctx context.Context, sessionID, sender, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, fmt.Errorf("%w: empty message", ErrValidation)
	}
	if sender != models.SenderOwner && sender != models.SenderScanner {
		return models.ChatMessage{}, fmt.Errorf("%w: unknown sender %q", ErrValidation, sender)
	}

	now := time.Now()
	var sess models.ChatSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ChatMessage{}, fmt.Errorf("%w: unknown session", ErrValidation)
	}
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: session lookup: %v", ErrSessionInit, err)
	}
	if !sess.Live(now) {
		return models.ChatMessage{}, fmt.Errorf("%w: session no longer active", ErrValidation)
	}

	msg := models.ChatMessage{
		MessageID: uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Text:      text,
		Timestamp: now,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: save message: %v", ErrSessionInit, err)
	}

	// Read and publish under the session's lock: two concurrent sends could
	// otherwise deliver their snapshots out of order and a subscriber's view
	// would regress to the shorter log.
	release := s.pubLocks.acquire(sessionID)
	if msgs, err := s.Messages(ctx, sessionID); err == nil {
		s.hub.publishMessages(sessionID, msgs)
	}
	release()
	return msg, nil
}

// Messages returns the full message log of a session in timestamp order.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: load messages: %v", ErrSubscription, err)
	}
	return msgs, nil
}

// SubscribeMessages registers fn to receive the complete, ordered message
// list on every change. fn is invoked once with the current snapshot before
// SubscribeMessages returns. The cancel func is idempotent and independent of
// other subscribers.
func (s *Service) SubscribeMessages(ctx context.Context, sessionID string, fn func([]models.ChatMessage)) (func(), error) {
	// Hold the session's publish lock across read, register, and first
	// delivery so a concurrent send cannot slip between them and leave the
	// new subscriber one snapshot behind.
	release := s.pubLocks.acquire(sessionID)
	defer release()

	msgs, err := s.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cancel := s.hub.subscribeSession(sessionID, fn)
	fn(msgs)
	return cancel, nil
}

// WatchVehicle registers fn to observe the vehicle's session slot. fn is
// invoked once with the current state before WatchVehicle returns and again
// after every create, end, or sweep affecting the vehicle.
func (s *Service) WatchVehicle(ctx context.Context, vehicleID uint, fn func(SessionState)) func() {
	cancel := s.hub.watchVehicle(vehicleID, fn)
	fn(s.State(ctx, vehicleID))
	return cancel
}

// State returns the current content of the vehicle's session slot.
func (s *Service) State(ctx context.Context, vehicleID uint) SessionState {
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("id DESC").
		First(&sess).Error
	if err != nil {
		return SessionState{VehicleID: vehicleID}
	}
	return SessionState{
		VehicleID: vehicleID,
		SessionID: sess.SessionID,
		IsActive:  sess.IsActive,
		ExpiresAt: sess.ExpiresAt,
	}
}

// EndSession marks the session inactive. Ending an already-inactive or
// unknown session is a no-op, not an error.
func (s *Service) EndSession(ctx context.Context, vehicleID uint, sessionID string) error {
	res := s.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("session_id = ? AND vehicle_id = ? AND is_active = ?", sessionID, vehicleID, true).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("%w: end session: %v", ErrSessionInit, res.Error)
	}
	if res.RowsAffected > 0 {
		s.hub.publishState(s.State(ctx, vehicleID))
	}
	return nil
}
