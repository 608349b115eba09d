package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pennywise/backend/internal/audit"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/money"
	"github.com/pennywise/backend/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateExpenseInput is a validated creation request.
type CreateExpenseInput struct {
	AmountCents int64
	Category    string
	Description *string
	Date        time.Time
}

// CreateExpenseResult reports whether the expense was written by this call
// or replayed from an earlier call with the same idempotency key.
type CreateExpenseResult struct {
	Expense  *models.Expense
	Replayed bool
}

// ExpenseList is one page of expenses plus totals over every match.
type ExpenseList struct {
	Items      []models.Expense
	TotalCents int64
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

type ExpenseService struct {
	expenses repository.ExpenseRepository
	audit    *audit.AuditLogger
}

func NewExpenseService(expenses repository.ExpenseRepository, auditLogger *audit.AuditLogger) *ExpenseService {
	return &ExpenseService{expenses: expenses, audit: auditLogger}
}

// Create writes at most one expense per (accountID, idempotencyKey). A call
// that collides with an earlier write returns that write with Replayed set.
func (s *ExpenseService) Create(ctx context.Context, accountID string, input CreateExpenseInput, idempotencyKey string) (*CreateExpenseResult, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, BadRequest("idempotency key is required")
	}
	if input.AmountCents <= 0 || input.AmountCents > money.MaxCents {
		return nil, BadRequest("amount is out of range")
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, BadRequest("category is required")
	}

	expense := &models.Expense{
		AccountID:      accountID,
		AmountCents:    input.AmountCents,
		Category:       category,
		Description:    input.Description,
		Date:           models.DateOnly(input.Date),
		IdempotencyKey: idempotencyKey,
	}

	err := s.expenses.Create(ctx, expense)
	if err == nil {
		log.Printf("[EXPENSE] Created expense %s for account %s (%s)", expense.ID, accountID, money.Format(expense.AmountCents))
		s.audit.LogExpense(audit.EventExpenseCreated, accountID, expense.ID, expense.AmountCents)
		return &CreateExpenseResult{Expense: expense}, nil
	}
	if !errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
		return nil, fmt.Errorf("create expense: %w", err)
	}

	existing, err := s.expenses.FindByIdempotencyKey(ctx, accountID, idempotencyKey)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("[EXPENSE] Idempotency key collided for account %s but no row was found", accountID)
		return nil, Conflict("idempotency key is in use, retry the request")
	}
	if err != nil {
		return nil, fmt.Errorf("load replayed expense: %w", err)
	}

	log.Printf("[EXPENSE] Replayed expense %s for account %s", existing.ID, accountID)
	s.audit.LogExpense(audit.EventExpenseReplayed, accountID, existing.ID, existing.AmountCents)
	return &CreateExpenseResult{Expense: existing, Replayed: true}, nil
}

// List returns one page of the account's expenses. Zero page and page size
// take their defaults.
func (s *ExpenseService) List(ctx context.Context, query repository.ExpenseQuery) (*ExpenseList, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = DefaultPageSize
	}
	if query.PageSize > MaxPageSize {
		return nil, BadRequest(fmt.Sprintf("page_size must be at most %d", MaxPageSize))
	}
	if query.Month != 0 && query.Year == 0 {
		return nil, BadRequest("month filter requires year")
	}
	if query.Month < 0 || query.Month > 12 {
		return nil, BadRequest("month must be between 1 and 12")
	}
	if query.Sort == "" {
		query.Sort = repository.SortNewest
	}
	query.Category = strings.TrimSpace(query.Category)

	page, err := s.expenses.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	return &ExpenseList{
		Items:      page.Items,
		TotalCents: page.TotalCents,
		Page:       query.Page,
		PageSize:   query.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: TotalPages(page.TotalItems, query.PageSize),
	}, nil
}

// Delete removes the expense when accountID owns it. Missing and foreign
// expenses both report false.
func (s *ExpenseService) Delete(ctx context.Context, accountID, expenseID string) (bool, error) {
	removed, err := s.expenses.Delete(ctx, accountID, expenseID)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	if removed {
		log.Printf("[EXPENSE] Deleted expense %s for account %s", expenseID, accountID)
		s.audit.LogExpense(audit.EventExpenseDeleted, accountID, expenseID, 0)
	}
	return removed, nil
}

// TotalPages is ceil(items/pageSize), never less than one.
func TotalPages(items, pageSize int) int {
	if items == 0 || pageSize < 1 {
		return 1
	}
	return (items + pageSize - 1) / pageSize
}
