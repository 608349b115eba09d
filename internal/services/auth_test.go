package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pennywise/backend/internal/audit"
	"github.com/pennywise/backend/internal/config"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/repository"
	"github.com/stretchr/testify/suite"
)

type AuthServiceSuite struct {
	suite.Suite
	ctx      context.Context
	accounts *repository.MemoryAccounts
	notifier *captureNotifier
	identity *MockIdentityVerifier
	tokens   *TokenService
	service  *AuthService
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.accounts = repository.NewMemoryAccounts()
	s.notifier = newCaptureNotifier()
	s.identity = new(MockIdentityVerifier)
	auditLogger := audit.NewAuditLoggerTo(io.Discard)

	hasher, err := NewArgon2Hasher(testArgon2Config())
	s.Require().NoError(err)
	s.tokens, err = NewTokenService(config.JWTConfig{SecretKey: "test-secret", Expiry: time.Hour, Issuer: "expense-tracker"})
	s.Require().NoError(err)

	passcodes := NewPasscodeService(repository.NewMemoryPasscodes(), s.notifier, auditLogger, testPasscodeConfig)
	s.service, err = NewAuthService(s.accounts, NewAccountResolver(s.accounts, auditLogger), passcodes, hasher, s.tokens, s.identity, auditLogger)
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) signup(email, password string) *Session {
	_, err := s.service.RequestPasscode(s.ctx, email, models.IntentSignup)
	s.Require().NoError(err)
	session, err := s.service.VerifyPasscode(s.ctx, email, models.IntentSignup, s.notifier.lastCode(email), password)
	s.Require().NoError(err)
	return session
}

func (s *AuthServiceSuite) TestSignupIssuesSession() {
	session := s.signup("alice@example.com", "OldPassword123")

	s.NotEmpty(session.AccessToken)
	s.Equal("alice@example.com", session.Account.Email)
	s.True(session.Account.HasPassword())

	account, err := s.service.Authenticate(s.ctx, session.AccessToken)
	s.Require().NoError(err)
	s.Equal(session.Account.ID, account.ID)
}

func (s *AuthServiceSuite) TestRepeatSignupRequestsReissue() {
	expiresAt, err := s.service.RequestPasscode(s.ctx, "alice@example.com", models.IntentSignup)
	s.Require().NoError(err)
	s.WithinDuration(time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)
	first := s.notifier.lastCode("alice@example.com")

	_, err = s.service.RequestPasscode(s.ctx, "alice@example.com", models.IntentSignup)
	s.Require().NoError(err)
	second := s.notifier.lastCode("alice@example.com")

	if first != second {
		_, err = s.service.VerifyPasscode(s.ctx, "alice@example.com", models.IntentSignup, first, "OldPassword123")
		s.True(IsKind(err, KindInvalidCode))
	}
	_, err = s.service.VerifyPasscode(s.ctx, "alice@example.com", models.IntentSignup, second, "OldPassword123")
	s.NoError(err)
}

func (s *AuthServiceSuite) TestSignupForEstablishedAccountConflicts() {
	s.signup("alice@example.com", "OldPassword123")

	_, err := s.service.RequestPasscode(s.ctx, "alice@example.com", models.IntentSignup)
	s.True(IsKind(err, KindConflict))
}

func (s *AuthServiceSuite) TestPasswordResetReplacesPassword() {
	s.signup("alice@example.com", "OldPassword123")

	_, err := s.service.RequestPasscode(s.ctx, "alice@example.com", models.IntentPasswordReset)
	s.Require().NoError(err)
	_, err = s.service.VerifyPasscode(s.ctx, "alice@example.com", models.IntentPasswordReset,
		s.notifier.lastCode("alice@example.com"), "NewPassword123")
	s.Require().NoError(err)

	_, err = s.service.Login(s.ctx, "alice@example.com", "OldPassword123")
	s.True(IsKind(err, KindUnauthorized))

	session, err := s.service.Login(s.ctx, "Alice@Example.com", "NewPassword123")
	s.Require().NoError(err)
	s.NotEmpty(session.AccessToken)
}

func (s *AuthServiceSuite) TestResetForUnknownEmail() {
	_, err := s.service.RequestPasscode(s.ctx, "nobody@example.com", models.IntentPasswordReset)
	s.True(IsKind(err, KindNotFound))
}

func (s *AuthServiceSuite) TestVerifyForUnknownEmail() {
	_, err := s.service.VerifyPasscode(s.ctx, "nobody@example.com", models.IntentSignup, "123456", "OldPassword123")
	s.True(IsKind(err, KindNotFound))
}

func (s *AuthServiceSuite) TestLoginFailures() {
	s.signup("alice@example.com", "OldPassword123")
	_, err := s.accounts.Create(s.ctx, "fed@example.com", strPtr("sub-9"))
	s.Require().NoError(err)

	_, err = s.service.Login(s.ctx, "nobody@example.com", "OldPassword123")
	s.Require().Error(err)
	s.True(IsKind(err, KindUnauthorized))
	s.Contains(err.Error(), "invalid credentials")

	_, err = s.service.Login(s.ctx, "alice@example.com", "WrongPassword1")
	s.Contains(err.Error(), "invalid credentials")

	_, err = s.service.Login(s.ctx, "fed@example.com", "OldPassword123")
	s.True(IsKind(err, KindUnauthorized))
	s.Contains(err.Error(), "password login not configured")
}

func (s *AuthServiceSuite) TestFederatedLoginLinksExistingAccount() {
	existing := s.signup("alice@example.com", "OldPassword123")
	s.identity.On("Verify", s.ctx, "google-token").
		Return(&FederatedIdentity{Subject: "sub-1", Email: "Alice@Example.com", EmailVerified: true}, nil)

	session, err := s.service.LoginFederated(s.ctx, "google-token")
	s.Require().NoError(err)
	s.Equal(existing.Account.ID, session.Account.ID)
	s.True(session.Account.HasFederatedID())

	_, err = s.service.Login(s.ctx, "alice@example.com", "OldPassword123")
	s.NoError(err, "password login keeps working after linking")
}

func (s *AuthServiceSuite) TestFederatedLoginRejectsUnverifiedEmail() {
	s.identity.On("Verify", s.ctx, "google-token").
		Return(&FederatedIdentity{Subject: "sub-1", Email: "alice@example.com"}, nil)

	_, err := s.service.LoginFederated(s.ctx, "google-token")
	s.True(IsKind(err, KindUnauthorized))
}

func (s *AuthServiceSuite) TestFederatedLoginPropagatesVerifierErrors() {
	s.identity.On("Verify", s.ctx, "bad-token").Return(nil, Unauthorized("invalid identity token", errors.New("expired")))

	_, err := s.service.LoginFederated(s.ctx, "bad-token")
	s.True(IsKind(err, KindUnauthorized))
}

func (s *AuthServiceSuite) TestFederatedConflict() {
	_, err := s.accounts.Create(s.ctx, "alice@example.com", strPtr("sub-1"))
	s.Require().NoError(err)
	s.identity.On("Verify", s.ctx, "other-token").
		Return(&FederatedIdentity{Subject: "sub-2", Email: "alice@example.com", EmailVerified: true}, nil)

	_, err = s.service.LoginFederated(s.ctx, "other-token")
	s.True(IsKind(err, KindConflict))
}

func (s *AuthServiceSuite) TestAuthenticateRejectsVanishedAccount() {
	token, _, err := s.tokens.Issue(&models.Account{ID: "ghost", Email: "ghost@example.com"})
	s.Require().NoError(err)

	_, err = s.service.Authenticate(s.ctx, token)
	s.True(IsKind(err, KindUnauthorized))
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}
