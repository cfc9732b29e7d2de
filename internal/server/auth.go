package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "wonders-server"

// ErrAuthDisabled is returned when no token secret is configured.
var ErrAuthDisabled = errors.New("player tokens are not configured")

// PlayerClaims identifies a player connection. Subject is the player ID.
type PlayerClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// PlayerID returns the token subject.
func (c *PlayerClaims) PlayerID() string { return c.Subject }

// TokenIssuer signs and verifies HS256 player tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns nil when secret is empty; a nil issuer accepts
// self-declared identities.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if secret == "" {
		return nil
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a token for a new player ID.
func (t *TokenIssuer) Issue(name string) (string, *PlayerClaims, error) {
	if t == nil {
		return "", nil, ErrAuthDisabled
	}
	now := t.now()
	claims := &PlayerClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a token.
func (t *TokenIssuer) Verify(tokenString string) (*PlayerClaims, error) {
	if t == nil {
		return nil, ErrAuthDisabled
	}
	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*PlayerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token or claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// identify resolves the caller of r. With an issuer, a token is required from
// the Authorization header or the token query parameter. Without one, the
// caller names itself via playerId and name query parameters.
func identify(issuer *TokenIssuer, r *http.Request) (*PlayerClaims, error) {
	if issuer == nil {
		claims := &PlayerClaims{Name: r.URL.Query().Get("name")}
		claims.Subject = r.URL.Query().Get("playerId")
		if claims.Subject == "" {
			claims.Subject = uuid.NewString()
		}
		if claims.Name == "" {
			claims.Name = "Player " + claims.Subject[:min(8, len(claims.Subject))]
		}
		return claims, nil
	}

	tokenString := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		tokenString = strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			return nil, fmt.Errorf("bearer token required")
		}
	}
	if tokenString == "" {
		return nil, fmt.Errorf("token required")
	}
	return issuer.Verify(tokenString)
}
