// Package auth validates bearer tokens issued by the platform's user
// management frontend. Token issuance, passwords, and MFA live outside this
// core; sessions here only need to map a presented token to an operator.
package auth

import (
	"errors"
	"log"
	"time"

	"github.com/shellgate/bastion/internal/database"
	"gorm.io/gorm"
)

// TokenStore resolves bearer tokens against the access_tokens table.
type TokenStore struct {
	db    *gorm.DB
	nowFn func() time.Time // injectable clock for testing
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db, nowFn: time.Now}
}

// Validate returns the operator username for a token, or false if the token
// is unknown or expired.
func (s *TokenStore) Validate(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	var rec database.AccessToken
	err := s.db.Where("token = ?", token).First(&rec).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[auth] token lookup failed: %v", err)
		}
		return "", false
	}

	if !rec.ExpiresAt.IsZero() && s.nowFn().After(rec.ExpiresAt) {
		return "", false
	}
	return rec.Username, true
}

// SetNowFunc sets the clock used for expiry checks in tests.
func (s *TokenStore) SetNowFunc(fn func() time.Time) {
	s.nowFn = fn
}
