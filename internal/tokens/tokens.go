// Package tokens issues and verifies the signed access tokens that
// external LLM/RAG consumers present when fetching an activity's
// documents.
package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"arstudio/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified payload of a RAG access token.
type Claims struct {
	ActivityID string
}

// Issuer signs and verifies RAG tokens with a shared HS256 secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  core.Clock
}

// NewIssuer creates an issuer. A missing secret fails fast here rather
// than producing tokens nobody can verify.
func NewIssuer(secret string, ttl time.Duration, clock core.Clock) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// Issue produces a token bound to one activity, expiring after the
// configured lifetime, with a unique random jti per token.
func (i *Issuer) Issue(activityID string) (string, error) {
	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}

	now := i.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"activityId": activityID,
		"iat":        jwt.NewNumericDate(now),
		"exp":        jwt.NewNumericDate(now.Add(i.ttl)),
		"jti":        hex.EncodeToString(jti),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims. Any
// failure (bad signature, expired, malformed) yields nil claims with no
// error detail exposed to callers; the token is simply invalid.
func (i *Issuer) Verify(tokenString string) *Claims {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.clock.Now))
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	activityID, _ := claims["activityId"].(string)
	if activityID == "" {
		return nil
	}
	return &Claims{ActivityID: activityID}
}
