// Package repository holds the persistence capabilities the services depend on.
// Every implementation must enforce the uniqueness rules itself and surface
// violations as the sentinel errors below, never as driver errors.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pennywise/backend/internal/models"
)

var (
	ErrNotFound                = errors.New("record not found")
	ErrDuplicateEmail          = errors.New("duplicate email")
	ErrDuplicateFederatedID    = errors.New("duplicate federated identity")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// AccountRepository stores accounts. Email and federated identity are unique.
type AccountRepository interface {
	Create(ctx context.Context, email string, federatedID *string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByFederatedID(ctx context.Context, federatedID string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (*models.Account, error)
	// BindFederatedID sets the federated identity only when none is bound yet.
	// It returns ErrNotFound when the account is missing or already bound.
	BindFederatedID(ctx context.Context, id, federatedID string) (*models.Account, error)
}

// PasscodeRepository stores passcode records.
type PasscodeRepository interface {
	InvalidateActive(ctx context.Context, accountID string, intent models.PasscodeIntent, now time.Time) error
	Create(ctx context.Context, record *models.PasscodeRecord) error
	FindActive(ctx context.Context, accountID string, intent models.PasscodeIntent, now time.Time) (*models.PasscodeRecord, error)
	// IncrementAttempts bumps the attempt counter of an unconsumed record and
	// returns the new value. ErrNotFound means it was consumed meanwhile.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// Consume marks an unconsumed record consumed. ErrNotFound means another
	// caller consumed it first.
	Consume(ctx context.Context, id string, now time.Time) error
}

// SortOrder orders expense listings by date.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// ExpenseQuery filters one account's expenses. Zero values mean "no filter".
type ExpenseQuery struct {
	AccountID string
	Category  string
	Date      *time.Time
	Month     int
	Year      int
	Sort      SortOrder
	Page      int
	PageSize  int
}

// DateRange returns the half-open [from, to) window selected by the date
// filters, or ok=false when no date filter applies.
func (q ExpenseQuery) DateRange() (from, to time.Time, ok bool) {
	switch {
	case q.Date != nil:
		from = models.DateOnly(*q.Date)
		return from, from.AddDate(0, 0, 1), true
	case q.Year > 0 && q.Month > 0:
		from = time.Date(q.Year, time.Month(q.Month), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), true
	case q.Year > 0:
		from = time.Date(q.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0), true
	}
	return time.Time{}, time.Time{}, false
}

// Offset is the number of rows skipped before the requested page.
func (q ExpenseQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// ExpensePage is one page of results plus aggregates over every matching row.
type ExpensePage struct {
	Items      []models.Expense
	TotalCents int64
	TotalItems int
}

// ExpenseRepository stores expenses. (AccountID, IdempotencyKey) is unique.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *models.Expense) error
	FindByIdempotencyKey(ctx context.Context, accountID, key string) (*models.Expense, error)
	List(ctx context.Context, query ExpenseQuery) (*ExpensePage, error)
	// Delete removes the expense only when owned by accountID.
	Delete(ctx context.Context, accountID, id string) (bool, error)
}
