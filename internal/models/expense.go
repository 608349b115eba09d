package models

import "time"

// DateLayout is the calendar-day wire format for expense dates.
const DateLayout = "2006-01-02"

// Expense is a dated spend owned by a single account. Amounts are kept in
// integer minor units (cents) to avoid floating point drift.
type Expense struct {
	ID             string    `json:"id" db:"id"`
	AccountID      string    `json:"account_id" db:"account_id"`
	AmountCents    int64     `json:"amount_cents" db:"amount"`
	Category       string    `json:"category" db:"category"`
	Description    *string   `json:"description" db:"description"`
	Date           time.Time `json:"date" db:"expense_date"` // UTC midnight
	IdempotencyKey string    `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// DateOnly truncates t to the UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
