package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultVerificationTTL bounds opaque verification tokens that carry no expiry.
const DefaultVerificationTTL = 10 * time.Minute

// TokenExpiry reads the exp claim of a JWT verification token.
// The signature is not checked here: the matching service verifies it, the
// client only needs to know when to stop offering it.
func TokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// VerificationFresh reports whether token may still be presented at now.
// JWT tokens expire at their exp claim; any other token expires ttl after
// verifiedAt.
func VerificationFresh(token string, verifiedAt, now time.Time, ttl time.Duration) bool {
	if token == "" {
		return false
	}
	if exp, ok := TokenExpiry(token); ok {
		return now.Before(exp)
	}
	if verifiedAt.IsZero() {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return now.Before(verifiedAt.Add(ttl))
}
