package models

import "time"

// Account is the owner of expenses. An account always has an email and holds
// at least one of a password hash or a federated identity once established.
type Account struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	FederatedID  *string   `json:"-" db:"federated_id"` // federated identity subject
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether password login is configured.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// HasFederatedID reports whether a federated identity is bound.
func (a *Account) HasFederatedID() bool {
	return a.FederatedID != nil && *a.FederatedID != ""
}

// Pending reports whether the account was created by a signup passcode
// request and has not completed verification yet.
func (a *Account) Pending() bool {
	return !a.HasPassword() && !a.HasFederatedID()
}
