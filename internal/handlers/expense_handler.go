package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mW "github.com/pennywise/backend/internal/middleware"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/money"
	"github.com/pennywise/backend/internal/repository"
	"github.com/pennywise/backend/internal/services"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
	maxPage              = 1 << 20
)

type ExpenseHandler struct {
	service   *services.ExpenseService
	validator *services.ValidationHelper
	now       func() time.Time
}

func NewExpenseHandler(service *services.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		now:       time.Now,
	}
}

// CreateExpenseRequest records a spend. amount may be a JSON number or string.
type CreateExpenseRequest struct {
	Amount      json.Number `json:"amount" validate:"required" swaggertype:"string" example:"12.50"`
	Category    string      `json:"category" validate:"required,max=64" example:"Food"`
	Description *string     `json:"description" validate:"omitempty,max=500" example:"Lunch"`
	Date        string      `json:"date" validate:"required,datetime=2006-01-02" example:"2026-02-17"`
}

// CreateExpense records an expense at most once per Idempotency-Key
// @Summary Create expense
// @Tags expenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string true "Client chosen key, reused on retry"
// @Param request body CreateExpenseRequest true "Expense"
// @Success 201 {object} CreateExpenseResponse "Created"
// @Success 200 {object} CreateExpenseResponse "Replayed"
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /expenses [post]
func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	account, ok := mW.AccountFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" || len(key) > maxIdempotencyKeyLen {
		services.SendErrorResponse(w, "Idempotency-Key header is required (max 255 characters)", http.StatusBadRequest, nil)
		return
	}

	var req CreateExpenseRequest
	if !services.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	cents, err := money.Parse(req.Amount.String())
	if err != nil || cents <= 0 {
		services.SendErrorResponse(w, "amount must be a positive decimal with at most 2 fractional digits", http.StatusBadRequest, nil)
		return
	}

	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		services.SendErrorResponse(w, "date must be YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}
	if date.After(models.DateOnly(h.now())) {
		services.SendErrorResponse(w, "date cannot be in the future", http.StatusBadRequest, nil)
		return
	}

	var description *string
	if req.Description != nil {
		if trimmed := strings.TrimSpace(*req.Description); trimmed != "" {
			description = &trimmed
		}
	}

	result, err := h.service.Create(r.Context(), account.ID, services.CreateExpenseInput{
		AmountCents: cents,
		Category:    req.Category,
		Description: description,
		Date:        date,
	}, key)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	services.SendJSON(w, status, CreateExpenseResponse{
		Data:     newExpenseResponse(result.Expense),
		Replayed: result.Replayed,
	})
}

// ListExpenses returns one page of the caller's expenses
// @Summary List expenses
// @Tags expenses
// @Produce json
// @Security BearerAuth
// @Param category query string false "Case-insensitive substring"
// @Param date query string false "Exact day, YYYY-MM-DD"
// @Param month query int false "1-12, requires year"
// @Param year query int false "Calendar year"
// @Param sort query string false "newest | oldest | date_desc | date_asc"
// @Param page query int false "Page, from 1"
// @Param page_size query int false "1-100, default 20"
// @Success 200 {object} ExpenseListResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /expenses [get]
func (h *ExpenseHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	account, ok := mW.AccountFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	query, msg := parseExpenseQuery(r.URL.Query())
	if msg != "" {
		services.SendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}
	query.AccountID = account.ID

	list, err := h.service.List(r.Context(), query)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, newExpenseListResponse(list))
}

// parseExpenseQuery reads list filters. A non-empty msg describes the first
// invalid parameter.
func parseExpenseQuery(values url.Values) (repository.ExpenseQuery, string) {
	var query repository.ExpenseQuery

	intParam := func(name string, min, max int) (int, string) {
		raw := values.Get(name)
		if raw == "" {
			return 0, ""
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < min || n > max {
			return 0, name + " must be an integer between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)
		}
		return n, ""
	}

	var msg string
	if query.Page, msg = intParam("page", 1, maxPage); msg != "" {
		return query, msg
	}
	if query.PageSize, msg = intParam("page_size", 1, services.MaxPageSize); msg != "" {
		return query, msg
	}
	if query.Month, msg = intParam("month", 1, 12); msg != "" {
		return query, msg
	}
	if query.Year, msg = intParam("year", 1900, 9999); msg != "" {
		return query, msg
	}
	if query.Month != 0 && query.Year == 0 {
		return query, "month filter requires year"
	}

	if raw := values.Get("date"); raw != "" {
		date, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return query, "date must be YYYY-MM-DD"
		}
		query.Date = &date
	}

	switch values.Get("sort") {
	case "", "newest", "date_desc":
		query.Sort = repository.SortNewest
	case "oldest", "date_asc":
		query.Sort = repository.SortOldest
	default:
		return query, "sort must be one of newest, oldest, date_desc, date_asc"
	}

	query.Category = strings.TrimSpace(values.Get("category"))
	if len(query.Category) > 64 {
		return query, "category must be at most 64 characters"
	}
	return query, ""
}

// DeleteExpense removes one of the caller's expenses
// @Summary Delete expense
// @Tags expenses
// @Security BearerAuth
// @Param expenseId path string true "Expense id"
// @Success 204 "Deleted"
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /expenses/{expenseId} [delete]
func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	account, ok := mW.AccountFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	expenseID := chi.URLParam(r, "expenseId")
	if _, err := uuid.Parse(expenseID); err != nil {
		services.SendErrorResponse(w, "Invalid expense id", http.StatusBadRequest, nil)
		return
	}

	removed, err := h.service.Delete(r.Context(), account.ID, expenseID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	if !removed {
		services.SendErrorResponse(w, "Expense not found", http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
