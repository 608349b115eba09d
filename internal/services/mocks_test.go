package services

import (
	"context"
	"sync"
	"time"

	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/repository"
	"github.com/stretchr/testify/mock"
	"google.golang.org/api/idtoken"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendPasscode(ctx context.Context, email, code string, ttl time.Duration, intent models.PasscodeIntent) error {
	args := m.Called(ctx, email, code, ttl, intent)
	return args.Error(0)
}

type MockIdentityVerifier struct {
	mock.Mock
}

func (m *MockIdentityVerifier) Verify(ctx context.Context, token string) (*FederatedIdentity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FederatedIdentity), args.Error(1)
}

type mockTokenValidator struct {
	mock.Mock
}

func (m *mockTokenValidator) Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error) {
	args := m.Called(ctx, idToken, audience)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idtoken.Payload), args.Error(1)
}

// captureNotifier remembers the last code sent to each email.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: make(map[string]string)}
}

func (c *captureNotifier) SendPasscode(_ context.Context, email, code string, _ time.Duration, _ models.PasscodeIntent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[email] = code
	c.sent++
	return nil
}

func (c *captureNotifier) lastCode(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) result(args mock.Arguments) (*models.Account, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, email string, federatedID *string) (*models.Account, error) {
	return m.result(m.Called(ctx, email, federatedID))
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return m.result(m.Called(ctx, email))
}

func (m *MockAccountRepository) FindByFederatedID(ctx context.Context, federatedID string) (*models.Account, error) {
	return m.result(m.Called(ctx, federatedID))
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (*models.Account, error) {
	return m.result(m.Called(ctx, id, passwordHash))
}

func (m *MockAccountRepository) BindFederatedID(ctx context.Context, id, federatedID string) (*models.Account, error) {
	return m.result(m.Called(ctx, id, federatedID))
}

type MockExpenseRepository struct {
	mock.Mock
}

func (m *MockExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	return m.Called(ctx, expense).Error(0)
}

func (m *MockExpenseRepository) FindByIdempotencyKey(ctx context.Context, accountID, key string) (*models.Expense, error) {
	args := m.Called(ctx, accountID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Expense), args.Error(1)
}

func (m *MockExpenseRepository) List(ctx context.Context, query repository.ExpenseQuery) (*repository.ExpensePage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ExpensePage), args.Error(1)
}

func (m *MockExpenseRepository) Delete(ctx context.Context, accountID, id string) (bool, error) {
	args := m.Called(ctx, accountID, id)
	return args.Bool(0), args.Error(1)
}
