package chat

import "errors"

var (
	// ErrSessionInit covers store failures while resolving or creating a
	// session. Callers surface it as a blocking error with manual retry.
	ErrSessionInit = errors.New("chat: session init failed")

	// ErrValidation covers empty message text, unknown senders, and sends
	// against a session that is missing, inactive, or expired.
	ErrValidation = errors.New("chat: validation failed")

	// ErrSubscription covers failures establishing a live message
	// subscription. Existing state on the caller side stays intact.
	ErrSubscription = errors.New("chat: subscription failed")
)
