package store

import (
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the JWT payload minted for a gateway session id.
// Grounded on the existing internal/session/jwt.go Claims type
// (jwt.RegisteredClaims embedding), adapted from "upstream MCP session id"
// to "gateway client session id" - the opaque id requires for
// Session.ID.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// SessionIDIssuer mints and validates opaque, signed session ids so a
// session id presented back to the gateway (e.g. on /message?session_id=)
// can't be forged or guessed across tenants. Grounded on the existing code's
// JWTManager.
type SessionIDIssuer struct {
	signingKey []byte
	duration   time.Duration
}

// NewSessionIDIssuer builds an issuer with the given signing key. duration
// <= 0 defaults to 24h, matching the existing DefaultSessionDuration.
func NewSessionIDIssuer(signingKey string, duration time.Duration) (*SessionIDIssuer, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("session id issuer: signing key is required")
	}
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &SessionIDIssuer{signingKey: []byte(signingKey), duration: duration}, nil
}

// New mints a fresh session id scoped to prefix.
func (iss *SessionIDIssuer) New(prefix string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "mcp-gateway",
			Subject:   prefix,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(iss.duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(iss.signingKey)
}

// Validate checks a session id's signature and expiry, returning the prefix
// it was minted for.
func (iss *SessionIDIssuer) Validate(id string) (prefix string, err error) {
	token, err := jwt.ParseWithClaims(id, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return iss.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session id: %w", err)
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid session id")
	}
	return claims.Subject, nil
}
