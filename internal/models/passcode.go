package models

import (
	"strings"
	"time"
)

// PasscodeIntent binds a one-time passcode to the purpose it was issued for.
type PasscodeIntent string

const (
	IntentSignup        PasscodeIntent = "signup"
	IntentPasswordReset PasscodeIntent = "password_reset"
)

// ParseIntent accepts the canonical intent names plus the legacy
// "forgot_password" spelling used by older clients.
func ParseIntent(raw string) (PasscodeIntent, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(IntentSignup):
		return IntentSignup, true
	case string(IntentPasswordReset), "forgot_password":
		return IntentPasswordReset, true
	}
	return "", false
}

// Label is the human readable purpose used in notification subjects.
func (i PasscodeIntent) Label() string {
	switch i {
	case IntentSignup:
		return "signup verification"
	case IntentPasswordReset:
		return "password reset"
	}
	return "verification"
}

// PasscodeRecord is one issued passcode. The plaintext code is never stored.
type PasscodeRecord struct {
	ID         string         `json:"id" db:"id"`
	AccountID  string         `json:"account_id" db:"account_id"`
	Intent     PasscodeIntent `json:"intent" db:"intent"`
	CodeDigest string         `json:"-" db:"code_digest"`
	Attempts   int            `json:"attempts" db:"attempts"`
	ExpiresAt  time.Time      `json:"expires_at" db:"expires_at"`
	ConsumedAt *time.Time     `json:"consumed_at" db:"consumed_at"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// Active reports whether the record can still be verified at now.
func (p *PasscodeRecord) Active(now time.Time) bool {
	return p.ConsumedAt == nil && now.Before(p.ExpiresAt)
}
