package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a caller's login session. Raw tokens are never stored; only the
// bcrypt hash and a lookup prefix.
type Session struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	UserID      uuid.UUID `db:"user_id"      json:"user_id"`
	TokenHash   string    `db:"token_hash"   json:"-"`
	TokenPrefix string    `db:"token_prefix" json:"-"`
	ExpiresAt   time.Time `db:"expires_at"   json:"expires_at"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}

// Valid reports whether the session exists and has not expired at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}
