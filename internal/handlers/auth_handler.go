package handlers

import (
	"log"
	"math"
	"net/http"
	"time"

	mW "github.com/pennywise/backend/internal/middleware"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/services"
)

type AuthHandler struct {
	service   *services.AuthService
	validator *services.ValidationHelper
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// PasscodeRequest asks for a one-time passcode
// @Description intent is signup or password_reset (forgot_password is accepted)
type PasscodeRequest struct {
	Email  string `json:"email" validate:"required,email,max=254" example:"user@example.com"`
	Intent string `json:"intent" validate:"required" example:"signup"`
}

// VerifyPasscodeRequest completes signup or reset with a new password
type VerifyPasscodeRequest struct {
	Email    string `json:"email" validate:"required,email,max=254" example:"user@example.com"`
	Intent   string `json:"intent" validate:"required" example:"signup"`
	OTP      string `json:"otp" validate:"required,passcode" example:"123456"`
	Password string `json:"password" validate:"required,min=8,max=72" example:"OldPassword123"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254" example:"user@example.com"`
	Password string `json:"password" validate:"required,max=72" example:"OldPassword123"`
}

// FederatedLoginRequest carries a Google ID token under either name
type FederatedLoginRequest struct {
	IDToken    string `json:"id_token" validate:"required_without=Credential"`
	Credential string `json:"credential" validate:"required_without=IDToken"`
}

func (h *AuthHandler) parseIntent(w http.ResponseWriter, raw string) (models.PasscodeIntent, bool) {
	intent, ok := models.ParseIntent(raw)
	if !ok {
		services.SendErrorResponse(w, "intent must be signup or password_reset", http.StatusBadRequest, nil)
	}
	return intent, ok
}

// RequestPasscode issues a passcode for signup or password reset
// @Summary Request passcode
// @Tags auth
// @Accept json
// @Produce json
// @Param request body PasscodeRequest true "Passcode request"
// @Success 200 {object} PasscodeRequestedResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse "No account for password reset"
// @Failure 409 {object} services.ErrorResponse "Account already exists"
// @Router /auth/request-otp [post]
func (h *AuthHandler) RequestPasscode(w http.ResponseWriter, r *http.Request) {
	var req PasscodeRequest
	if !services.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	intent, ok := h.parseIntent(w, req.Intent)
	if !ok {
		return
	}

	expiresAt, err := h.service.RequestPasscode(r.Context(), services.NormalizeEmail(req.Email), intent)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, PasscodeRequestedResponse{
		Message:          "Passcode sent",
		ExpiresInMinutes: int(math.Ceil(time.Until(expiresAt).Minutes())),
	})
}

// VerifyPasscode checks a passcode and sets the account password
// @Summary Verify passcode
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyPasscodeRequest true "Verification request"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse "Invalid passcode"
// @Failure 404 {object} services.ErrorResponse "No active passcode"
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyPasscode(w http.ResponseWriter, r *http.Request) {
	var req VerifyPasscodeRequest
	if !services.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	intent, ok := h.parseIntent(w, req.Intent)
	if !ok {
		return
	}

	session, err := h.service.VerifyPasscode(r.Context(), services.NormalizeEmail(req.Email), intent, req.OTP, req.Password)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, newSessionResponse(session))
}

// Login authenticates with email and password
// @Summary Password login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !services.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	session, err := h.service.Login(r.Context(), services.NormalizeEmail(req.Email), req.Password)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, newSessionResponse(session))
}

// LoginFederated authenticates with a Google ID token
// @Summary Google login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body FederatedLoginRequest true "Identity token"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse "Email linked to another identity"
// @Failure 503 {object} services.ErrorResponse "Federated login not configured"
// @Router /auth/google [post]
func (h *AuthHandler) LoginFederated(w http.ResponseWriter, r *http.Request) {
	var req FederatedLoginRequest
	if !services.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	token := req.IDToken
	if token == "" {
		token = req.Credential
	}

	session, err := h.service.LoginFederated(r.Context(), token)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, newSessionResponse(session))
}

// Me returns the authenticated account
// @Summary Current account
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := mW.AccountFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	services.SendJSON(w, http.StatusOK, ProfileResponse{
		ID:            account.ID,
		Email:         account.Email,
		PasswordLogin: account.HasPassword(),
		Federated:     account.HasFederatedID(),
	})
}
