// Package apikey issues and verifies tenant API keys. Raw keys are shown once;
// only the bcrypt hash and a lookup prefix are stored.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// Marker starts every raw key.
	Marker = "fd_"
	// PrefixLen is the number of leading characters stored in clear for lookup.
	PrefixLen = 8

	secretBytes = 20
)

// Generate returns a new raw key.
func Generate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return Marker + hex.EncodeToString(buf), nil
}

// PrefixOf returns the lookup prefix of raw, or "" if raw is too short.
func PrefixOf(raw string) string {
	if len(raw) < PrefixLen {
		return ""
	}
	return raw[:PrefixLen]
}

func Hash(raw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(h), nil
}

func Verify(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// Spec describes a key to issue.
type Spec struct {
	TenantID uuid.UUID
	Name     string
	Owner    string
	Scopes   []string
}

var validScopes = map[string]bool{
	models.ScopeRead:     true,
	models.ScopeDispatch: true,
	models.ScopeAdmin:    true,
}

// ValidScope reports whether s is a known scope.
func ValidScope(s string) bool { return validScopes[s] }

// Issue creates the stored key record and the raw key to hand to the caller.
func Issue(spec Spec, now time.Time) (*models.APIKey, string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, "", fmt.Errorf("api key name is required")
	}
	if len(spec.Scopes) == 0 {
		spec.Scopes = []string{models.ScopeRead}
	}
	for _, s := range spec.Scopes {
		if !ValidScope(s) {
			return nil, "", fmt.Errorf("unknown scope %q", s)
		}
	}

	raw, err := Generate()
	if err != nil {
		return nil, "", err
	}
	hash, err := Hash(raw)
	if err != nil {
		return nil, "", err
	}
	return &models.APIKey{
		ID:        uuid.New(),
		TenantID:  spec.TenantID,
		Name:      strings.TrimSpace(spec.Name),
		Owner:     strings.TrimSpace(spec.Owner),
		KeyHash:   hash,
		KeyPrefix: PrefixOf(raw),
		Scopes:    spec.Scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, raw, nil
}
