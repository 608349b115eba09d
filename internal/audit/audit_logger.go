// Package audit writes one JSON line per security-relevant event.
package audit

import (
	"encoding/json"
	"io"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	AccountID string    `json:"account_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	Amount    *int64    `json:"amount_cents,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

const (
	EventPasscodeIssued   = "PASSCODE_ISSUED"
	EventPasscodeVerified = "PASSCODE_VERIFIED"
	EventPasscodeRejected = "PASSCODE_REJECTED"
	EventPasscodeBurned   = "PASSCODE_BURNED"
	EventLogin            = "LOGIN"
	EventFederatedLink    = "FEDERATED_LINK"
	EventExpenseCreated   = "EXPENSE_CREATED"
	EventExpenseReplayed  = "EXPENSE_REPLAYED"
	EventExpenseDeleted   = "EXPENSE_DELETED"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

type AuditLogger struct {
	logger *log.Logger
	now    func() time.Time
}

// NewAuditLogger writes through the standard logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{logger: log.Default(), now: time.Now}
}

// NewAuditLoggerTo writes bare lines to w.
func NewAuditLoggerTo(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: log.New(w, "", 0), now: time.Now}
}

func (a *AuditLogger) LogPasscode(eventType, accountID, intent string) {
	status := StatusSuccess
	if eventType == EventPasscodeRejected || eventType == EventPasscodeBurned {
		status = StatusFailed
	}
	a.log(Event{
		EventType: eventType,
		AccountID: accountID,
		Status:    status,
		Details:   map[string]string{"intent": intent},
	})
}

// LogLogin records a login attempt. accountID is empty when no account matched.
func (a *AuditLogger) LogLogin(accountID, method string, err error) {
	event := Event{
		EventType: EventLogin,
		AccountID: accountID,
		Status:    StatusSuccess,
		Details:   map[string]string{"method": method},
	}
	if err != nil {
		event.Status = StatusFailed
		event.Details = map[string]string{"method": method, "error": err.Error()}
	}
	a.log(event)
}

func (a *AuditLogger) LogFederatedLink(accountID string) {
	a.log(Event{EventType: EventFederatedLink, AccountID: accountID, Status: StatusSuccess})
}

func (a *AuditLogger) LogExpense(eventType, accountID, expenseID string, amountCents int64) {
	a.log(Event{
		EventType: eventType,
		AccountID: accountID,
		SubjectID: expenseID,
		Amount:    &amountCents,
		Status:    StatusSuccess,
	})
}

func (a *AuditLogger) log(event Event) {
	if a == nil {
		return
	}
	event.Timestamp = a.now().UTC()
	data, _ := json.Marshal(event)
	a.logger.Printf("AUDIT: %s", string(data))
}
