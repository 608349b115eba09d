package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pennywise/backend/internal/models"
)

// MemoryAccounts is an in-process AccountRepository used for local
// development and tests. It enforces the same uniqueness rules as Postgres.
type MemoryAccounts struct {
	mu          sync.RWMutex
	byID        map[string]*models.Account
	byEmail     map[string]string
	byFederated map[string]string
	now         func() time.Time
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byID:        make(map[string]*models.Account),
		byEmail:     make(map[string]string),
		byFederated: make(map[string]string),
		now:         time.Now,
	}
}

func (m *MemoryAccounts) Create(_ context.Context, email string, federatedID *string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
		return nil, ErrDuplicateEmail
	}
	if federatedID != nil {
		if _, ok := m.byFederated[*federatedID]; ok {
			return nil, ErrDuplicateFederatedID
		}
	}

	now := m.now().UTC()
	account := &models.Account{
		ID:          uuid.NewString(),
		Email:       email,
		FederatedID: cloneString(federatedID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.byID[account.ID] = account
	m.byEmail[email] = account.ID
	if federatedID != nil {
		m.byFederated[*federatedID] = account.ID
	}
	return cloneAccount(account), nil
}

func (m *MemoryAccounts) FindByID(_ context.Context, id string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (m *MemoryAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.RLock()
	id, ok := m.byEmail[email]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *MemoryAccounts) FindByFederatedID(ctx context.Context, federatedID string) (*models.Account, error) {
	m.mu.RLock()
	id, ok := m.byFederated[federatedID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *MemoryAccounts) UpdatePassword(_ context.Context, id, passwordHash string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	account.PasswordHash = &passwordHash
	account.UpdatedAt = m.now().UTC()
	return cloneAccount(account), nil
}

func (m *MemoryAccounts) BindFederatedID(_ context.Context, id, federatedID string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok || account.HasFederatedID() {
		return nil, ErrNotFound
	}
	if _, taken := m.byFederated[federatedID]; taken {
		return nil, ErrDuplicateFederatedID
	}
	account.FederatedID = &federatedID
	account.UpdatedAt = m.now().UTC()
	m.byFederated[federatedID] = id
	return cloneAccount(account), nil
}

// MemoryPasscodes is an in-process PasscodeRepository.
type MemoryPasscodes struct {
	mu      sync.Mutex
	records []*models.PasscodeRecord
}

func NewMemoryPasscodes() *MemoryPasscodes {
	return &MemoryPasscodes{}
}

func (m *MemoryPasscodes) InvalidateActive(_ context.Context, accountID string, intent models.PasscodeIntent, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.AccountID == accountID && r.Intent == intent && r.ConsumedAt == nil {
			consumed := now
			r.ConsumedAt = &consumed
		}
	}
	return nil
}

func (m *MemoryPasscodes) Create(_ context.Context, record *models.PasscodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	stored := *record
	m.records = append(m.records, &stored)
	return nil
}

func (m *MemoryPasscodes) FindActive(_ context.Context, accountID string, intent models.PasscodeIntent, now time.Time) (*models.PasscodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Newest first, matching ORDER BY created_at DESC.
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.AccountID == accountID && r.Intent == intent && r.Active(now) {
			found := *r
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryPasscodes) IncrementAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	if r == nil || r.ConsumedAt != nil {
		return 0, ErrNotFound
	}
	r.Attempts++
	return r.Attempts, nil
}

func (m *MemoryPasscodes) Consume(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	if r == nil || r.ConsumedAt != nil {
		return ErrNotFound
	}
	consumed := now
	r.ConsumedAt = &consumed
	return nil
}

func (m *MemoryPasscodes) find(id string) *models.PasscodeRecord {
	for _, r := range m.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

type idempotencyIndex struct {
	accountID string
	key       string
}

// MemoryExpenses is an in-process ExpenseRepository.
type MemoryExpenses struct {
	mu       sync.RWMutex
	byID     map[string]*models.Expense
	byKey    map[idempotencyIndex]string
	sequence []string
}

func NewMemoryExpenses() *MemoryExpenses {
	return &MemoryExpenses{
		byID:  make(map[string]*models.Expense),
		byKey: make(map[idempotencyIndex]string),
	}
}

func (m *MemoryExpenses) Create(_ context.Context, expense *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := idempotencyIndex{accountID: expense.AccountID, key: expense.IdempotencyKey}
	if _, ok := m.byKey[idx]; ok {
		return ErrDuplicateIdempotencyKey
	}
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	stored := cloneExpense(expense)
	m.byID[stored.ID] = stored
	m.byKey[idx] = stored.ID
	m.sequence = append(m.sequence, stored.ID)
	return nil
}

func (m *MemoryExpenses) FindByIdempotencyKey(_ context.Context, accountID, key string) (*models.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[idempotencyIndex{accountID: accountID, key: key}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExpense(m.byID[id]), nil
}

func (m *MemoryExpenses) List(_ context.Context, query ExpenseQuery) (*ExpensePage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to, dated := query.DateRange()
	category := strings.ToLower(query.Category)

	var matched []models.Expense
	page := &ExpensePage{}
	for _, id := range m.sequence {
		e, ok := m.byID[id]
		if !ok || e.AccountID != query.AccountID {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(e.Category), category) {
			continue
		}
		if dated && (e.Date.Before(from) || !e.Date.Before(to)) {
			continue
		}
		matched = append(matched, *cloneExpense(e))
		page.TotalCents += e.AmountCents
	}
	page.TotalItems = len(matched)

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Date.Equal(b.Date) {
			if query.Sort == SortOldest {
				return a.Date.Before(b.Date)
			}
			return a.Date.After(b.Date)
		}
		if query.Sort == SortOldest {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	start := query.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if query.PageSize > 0 && start+query.PageSize < end {
		end = start + query.PageSize
	}
	page.Items = matched[start:end]
	return page, nil
}

func (m *MemoryExpenses) Delete(_ context.Context, accountID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.AccountID != accountID {
		return false, nil
	}
	delete(m.byID, id)
	delete(m.byKey, idempotencyIndex{accountID: e.AccountID, key: e.IdempotencyKey})
	for i, sid := range m.sequence {
		if sid == id {
			m.sequence = append(m.sequence[:i], m.sequence[i+1:]...)
			break
		}
	}
	return true, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.PasswordHash = cloneString(a.PasswordHash)
	c.FederatedID = cloneString(a.FederatedID)
	return &c
}

func cloneExpense(e *models.Expense) *models.Expense {
	c := *e
	c.Description = cloneString(e.Description)
	return &c
}
