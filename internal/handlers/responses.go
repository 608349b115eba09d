package handlers

import (
	"time"

	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/money"
	"github.com/pennywise/backend/internal/services"
)

// UserResponse is the public view of an account.
type UserResponse struct {
	ID    string `json:"id" example:"3f1c2a9e-8f0b-4b5e-9a61-0c2d4e6f8a10"`
	Email string `json:"email" example:"user@example.com"`
}

// SessionResponse is returned by every successful login flow.
type SessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type" example:"Bearer"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

func newSessionResponse(session *services.Session) SessionResponse {
	return SessionResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt.UTC(),
		User:        UserResponse{ID: session.Account.ID, Email: session.Account.Email},
	}
}

// ProfileResponse describes the authenticated account.
type ProfileResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	PasswordLogin bool   `json:"password_login"`
	Federated     bool   `json:"federated"`
}

// PasscodeRequestedResponse acknowledges a passcode request.
type PasscodeRequestedResponse struct {
	Message          string `json:"message" example:"Passcode sent"`
	ExpiresInMinutes int    `json:"expires_in_minutes" example:"10"`
}

// ExpenseResponse renders amounts as fixed two-decimal strings.
type ExpenseResponse struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount" example:"12.50"`
	Category    string    `json:"category" example:"Food"`
	Description *string   `json:"description"`
	Date        string    `json:"date" example:"2026-02-17"`
	CreatedAt   time.Time `json:"created_at"`
}

func newExpenseResponse(e *models.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          e.ID,
		Amount:      money.Format(e.AmountCents),
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date.Format(models.DateLayout),
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

// CreateExpenseResponse wraps a created or replayed expense.
type CreateExpenseResponse struct {
	Data     ExpenseResponse `json:"data"`
	Replayed bool            `json:"replayed"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ExpenseListResponse carries one page plus the sum over every match.
type ExpenseListResponse struct {
	Data       []ExpenseResponse `json:"data"`
	Total      string            `json:"total" example:"18.00"`
	Pagination Pagination        `json:"pagination"`
}

func newExpenseListResponse(list *services.ExpenseList) ExpenseListResponse {
	data := make([]ExpenseResponse, 0, len(list.Items))
	for i := range list.Items {
		data = append(data, newExpenseResponse(&list.Items[i]))
	}
	return ExpenseListResponse{
		Data:  data,
		Total: money.Format(list.TotalCents),
		Pagination: Pagination{
			Page:       list.Page,
			PageSize:   list.PageSize,
			TotalItems: list.TotalItems,
			TotalPages: list.TotalPages,
		},
	}
}
