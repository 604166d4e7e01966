// Package pairing issues and validates short-lived organization pairing
// codes, stored through the collection facade like any other document type.
package pairing

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"arstudio/internal/core"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeTTL      = 24 * time.Hour
)

// Code binds a random pairing code to an organization for a limited time.
// Codes are never mutated or deleted; expiry is enforced purely by
// timestamp comparison at read time.
type Code struct {
	ID        string
	Code      string
	OrgID     string
	CreatedAt int64 // epoch milliseconds
	ExpiresAt int64
	IsActive  bool
}

// Store persists pairing codes in the "pairing_codes" logical collection.
type Store struct {
	codes core.Collection
	clock core.Clock
}

// NewStore creates a pairing-code store over the given collection handle.
func NewStore(codes core.Collection, clock core.Clock) *Store {
	return &Store{codes: codes, clock: clock}
}

// Generate creates and persists a fresh code for the organization, valid
// for 24 hours.
func (s *Store) Generate(ctx context.Context, orgID string) (*Code, error) {
	now := s.clock.Now().UnixMilli()
	generated, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("generating pairing code: %w", err)
	}
	code := &Code{
		Code:      generated,
		OrgID:     orgID,
		CreatedAt: now,
		ExpiresAt: now + codeTTL.Milliseconds(),
		IsActive:  true,
	}

	id, err := s.codes.InsertOne(ctx, core.Document{
		"code":      code.Code,
		"orgId":     code.OrgID,
		"createdAt": code.CreatedAt,
		"expiresAt": code.ExpiresAt,
		"isActive":  code.IsActive,
	})
	if err != nil {
		return nil, fmt.Errorf("persisting pairing code: %w", err)
	}
	code.ID = id
	return code, nil
}

// Validate looks up an active code and checks its expiry. Returns nil for
// an unknown, inactive, or expired code; the isActive flag is never
// flipped on expiry.
func (s *Store) Validate(ctx context.Context, code string) (*Code, error) {
	doc, err := s.codes.FindOne(ctx, core.Where(map[string]any{
		"code":     code,
		"isActive": true,
	}))
	if err != nil {
		return nil, fmt.Errorf("looking up pairing code: %w", err)
	}
	if doc == nil {
		return nil, nil
	}

	rec := fromDocument(doc)
	if rec.ExpiresAt <= s.clock.Now().UnixMilli() {
		return nil, nil
	}
	return rec, nil
}

// ResolveOrgID validates the code and projects its organization
// identifier, or "" when validation fails.
func (s *Store) ResolveOrgID(ctx context.Context, code string) (string, error) {
	rec, err := s.Validate(ctx, code)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.OrgID, nil
}

// randomCode draws the code from crypto/rand: the code stands in for an
// organization credential until it expires.
func randomCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func fromDocument(doc core.Document) *Code {
	code := &Code{ID: doc.ID()}
	code.Code, _ = doc["code"].(string)
	code.OrgID, _ = doc["orgId"].(string)
	code.CreatedAt = asInt64(doc["createdAt"])
	code.ExpiresAt = asInt64(doc["expiresAt"])
	switch v := doc["isActive"].(type) {
	case bool:
		code.IsActive = v
	case float64:
		code.IsActive = v != 0
	}
	return code
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
