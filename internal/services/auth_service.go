package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pennywise/backend/internal/audit"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/repository"
)

const (
	loginMethodPassword  = "password"
	loginMethodPasscode  = "passcode"
	loginMethodFederated = "federated"
)

// Session is an issued bearer credential.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	Account     *models.Account
}

// AuthService coordinates the passcode, password and federated login flows.
// It holds no per-flow state; everything lives in the stores.
type AuthService struct {
	accounts  repository.AccountRepository
	resolver  *AccountResolver
	passcodes *PasscodeService
	hasher    PasswordHasher
	tokens    *TokenService
	identity  IdentityVerifier
	audit     *audit.AuditLogger

	// dummyHash is verified against when no account matches, so unknown
	// emails cost the same as wrong passwords.
	dummyHash string
}

func NewAuthService(
	accounts repository.AccountRepository,
	resolver *AccountResolver,
	passcodes *PasscodeService,
	hasher PasswordHasher,
	tokens *TokenService,
	identity IdentityVerifier,
	auditLogger *audit.AuditLogger,
) (*AuthService, error) {
	dummyHash, err := hasher.Hash("timing-equalization-placeholder")
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}
	return &AuthService{
		accounts:  accounts,
		resolver:  resolver,
		passcodes: passcodes,
		hasher:    hasher,
		tokens:    tokens,
		identity:  identity,
		audit:     auditLogger,
		dummyHash: dummyHash,
	}, nil
}

// PasscodeTTL is the lifetime of codes issued by RequestPasscode.
func (s *AuthService) PasscodeTTL() time.Duration {
	return s.passcodes.TTL()
}

// RequestPasscode resolves the account for intent and issues a fresh code,
// retiring any earlier one. It returns when the new code expires.
func (s *AuthService) RequestPasscode(ctx context.Context, email string, intent models.PasscodeIntent) (time.Time, error) {
	account, err := s.resolver.ResolveForPasscodeIntent(ctx, email, intent)
	if err != nil {
		log.Printf("[AUTH] Passcode request (%s) rejected: %v", intent, err)
		return time.Time{}, err
	}

	issued, err := s.passcodes.Issue(ctx, account, intent)
	if err != nil {
		log.Printf("[AUTH] Passcode issue failed for account %s: %v", account.ID, err)
		return time.Time{}, err
	}
	return issued.ExpiresAt, nil
}

// VerifyPasscode checks code and, on success, sets newPassword on the
// account and opens a session.
func (s *AuthService) VerifyPasscode(ctx context.Context, email string, intent models.PasscodeIntent, code, newPassword string) (*Session, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	if err := s.passcodes.Verify(ctx, account, intent, code); err != nil {
		s.audit.LogLogin(account.ID, loginMethodPasscode, err)
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	account, err = s.accounts.UpdatePassword(ctx, account.ID, hash)
	if err != nil {
		return nil, fmt.Errorf("store password: %w", err)
	}

	log.Printf("[AUTH] Password set via %s for account %s", intent, account.ID)
	s.audit.LogLogin(account.ID, loginMethodPasscode, nil)
	return s.openSession(account)
}

// Login authenticates with email and password. Apart from the
// password-not-configured case, every failure reads "invalid credentials".
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(password, s.dummyHash)
		s.audit.LogLogin("", loginMethodPassword, errors.New("unknown email"))
		return nil, Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	if !account.HasPassword() {
		s.audit.LogLogin(account.ID, loginMethodPassword, errors.New("password login not configured"))
		return nil, Unauthorized("password login not configured")
	}

	ok, err := s.hasher.Verify(password, *account.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			log.Printf("[AUTH] Stored hash for account %s is unreadable: %v", account.ID, err)
		}
		s.audit.LogLogin(account.ID, loginMethodPassword, errors.New("password mismatch"))
		return nil, Unauthorized("invalid credentials")
	}

	log.Printf("[AUTH] Password login for account %s", account.ID)
	s.audit.LogLogin(account.ID, loginMethodPassword, nil)
	return s.openSession(account)
}

// LoginFederated authenticates with a federated identity token whose email
// the issuer has verified.
func (s *AuthService) LoginFederated(ctx context.Context, token string) (*Session, error) {
	if s.identity == nil {
		return nil, Misconfigured("federated login is not configured")
	}

	identity, err := s.identity.Verify(ctx, token)
	if err != nil {
		s.audit.LogLogin("", loginMethodFederated, err)
		return nil, err
	}
	if !identity.EmailVerified {
		s.audit.LogLogin("", loginMethodFederated, errors.New("email not verified"))
		return nil, Unauthorized("email is not verified by the identity provider")
	}

	account, err := s.resolver.ResolveForFederatedLogin(ctx, identity.Subject, identity.Email)
	if err != nil {
		s.audit.LogLogin("", loginMethodFederated, err)
		return nil, err
	}

	log.Printf("[AUTH] Federated login for account %s", account.ID)
	s.audit.LogLogin(account.ID, loginMethodFederated, nil)
	return s.openSession(account)
}

// Authenticate validates a session credential and reloads its account.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	identity, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByID(ctx, identity.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Unauthorized("account no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

func (s *AuthService) openSession(account *models.Account) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &Session{AccessToken: token, ExpiresAt: expiresAt, Account: account}, nil
}
