package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/pennywise/backend/internal/audit"
	"github.com/pennywise/backend/internal/config"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/repository"
)

const passcodeDigits = 6

var passcodeSpace = big.NewInt(1_000_000)

// IssuedPasscode is a freshly issued code. Code is only ever handed to the
// notifier.
type IssuedPasscode struct {
	Code      string
	ExpiresAt time.Time
}

// PasscodeService issues and verifies one-time passcodes. At most one code
// per (account, intent) is active: issuing retires the previous ones, and a
// code is retired on success or once its attempt budget is spent.
type PasscodeService struct {
	passcodes       repository.PasscodeRepository
	notifier        Notifier
	audit           *audit.AuditLogger
	ttl             time.Duration
	maxAttempts     int
	deliveryTimeout time.Duration
	now             func() time.Time
	generate        func() (string, error)
}

func NewPasscodeService(passcodes repository.PasscodeRepository, notifier Notifier, auditLogger *audit.AuditLogger, cfg config.PasscodeConfig) *PasscodeService {
	return &PasscodeService{
		passcodes:       passcodes,
		notifier:        notifier,
		audit:           auditLogger,
		ttl:             cfg.TTL,
		maxAttempts:     cfg.MaxAttempts,
		deliveryTimeout: cfg.DeliveryTimeout,
		now:             time.Now,
		generate:        generatePasscode,
	}
}

// TTL is how long an issued code stays valid.
func (s *PasscodeService) TTL() time.Duration {
	return s.ttl
}

// Issue retires the active codes for (account, intent), stores a new one and
// hands the plaintext to the notifier. Delivery failures are logged only;
// the stored code stays valid.
func (s *PasscodeService) Issue(ctx context.Context, account *models.Account, intent models.PasscodeIntent) (*IssuedPasscode, error) {
	now := s.now().UTC()
	if err := s.passcodes.InvalidateActive(ctx, account.ID, intent, now); err != nil {
		return nil, fmt.Errorf("invalidate passcodes: %w", err)
	}

	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate passcode: %w", err)
	}

	record := &models.PasscodeRecord{
		AccountID:  account.ID,
		Intent:     intent,
		CodeDigest: passcodeDigest(account.Email, code),
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
	}
	if err := s.passcodes.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store passcode: %w", err)
	}

	log.Printf("[PASSCODE] Issued %s code for account %s, expires %s", intent, account.ID, record.ExpiresAt.Format(time.RFC3339))
	s.audit.LogPasscode(audit.EventPasscodeIssued, account.ID, string(intent))

	s.deliver(ctx, account, code, intent)
	return &IssuedPasscode{Code: code, ExpiresAt: record.ExpiresAt}, nil
}

func (s *PasscodeService) deliver(ctx context.Context, account *models.Account, code string, intent models.PasscodeIntent) {
	// Delivery outlives a cancelled request but not the delivery timeout.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deliveryTimeout)
	defer cancel()

	if err := s.notifier.SendPasscode(sendCtx, account.Email, code, s.ttl, intent); err != nil {
		log.Printf("[MAILER] Passcode delivery failed for account %s: %v", account.ID, err)
	}
}

// Verify checks code against the active record for (account, intent) and
// consumes it on success. A mismatch that uses up the attempt budget burns
// the record.
func (s *PasscodeService) Verify(ctx context.Context, account *models.Account, intent models.PasscodeIntent, code string) error {
	now := s.now().UTC()
	record, err := s.passcodes.FindActive(ctx, account.ID, intent, now)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("no active passcode, request a new one")
	}
	if err != nil {
		return fmt.Errorf("load passcode: %w", err)
	}

	if record.Attempts >= s.maxAttempts {
		s.burn(ctx, record, now)
		return InvalidCode("invalid passcode")
	}

	expected := passcodeDigest(account.Email, code)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(record.CodeDigest)) != 1 {
		attempts, err := s.passcodes.IncrementAttempts(ctx, record.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return InvalidCode("invalid passcode")
		}
		if err != nil {
			return fmt.Errorf("record passcode attempt: %w", err)
		}

		log.Printf("[PASSCODE] Wrong %s code for account %s (attempt %d/%d)", intent, account.ID, attempts, s.maxAttempts)
		s.audit.LogPasscode(audit.EventPasscodeRejected, account.ID, string(intent))
		if attempts >= s.maxAttempts {
			s.burn(ctx, record, now)
		}
		return InvalidCode("invalid passcode")
	}

	if err := s.passcodes.Consume(ctx, record.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("no active passcode, request a new one")
		}
		return fmt.Errorf("consume passcode: %w", err)
	}

	log.Printf("[PASSCODE] Verified %s code for account %s", intent, account.ID)
	s.audit.LogPasscode(audit.EventPasscodeVerified, account.ID, string(intent))
	return nil
}

func (s *PasscodeService) burn(ctx context.Context, record *models.PasscodeRecord, now time.Time) {
	err := s.passcodes.Consume(ctx, record.ID, now)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Printf("[PASSCODE] Failed to burn passcode %s: %v", record.ID, err)
		return
	}
	log.Printf("[PASSCODE] Attempt budget exhausted, burned %s code for account %s", record.Intent, record.AccountID)
	s.audit.LogPasscode(audit.EventPasscodeBurned, record.AccountID, string(record.Intent))
}

func generatePasscode() (string, error) {
	n, err := rand.Int(rand.Reader, passcodeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", passcodeDigits, n.Int64()), nil
}

// passcodeDigest binds a code to the normalized email it was issued for.
func passcodeDigest(email, code string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email) + ":" + strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
