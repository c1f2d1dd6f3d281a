package tokenstore

import "sync"

// In-memory revocation set for JWT jti claims. Logout adds the token's jti
// here and the auth middleware rejects it for the rest of its lifetime.
// Entries live until process restart, which is at most the 24h token expiry
// away from mattering; a multi-instance deployment would need a shared store.
var (
	mu      sync.RWMutex
	revoked = map[string]struct{}{}
)

// RevokeToken marks a jti as logged out. Empty ids are ignored.
func RevokeToken(jti string) {
	if jti == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	revoked[jti] = struct{}{}
}

// IsRevoked reports whether the jti was revoked by a logout.
func IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	mu.RLock()
	defer mu.RUnlock()
	_, ok := revoked[jti]
	return ok
}
