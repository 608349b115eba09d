package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pennywise/backend/internal/audit"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/repository"
)

// federatedResolveAttempts bounds re-resolution after a lost uniqueness race.
const federatedResolveAttempts = 2

// AccountResolver finds or creates the account behind an email or federated
// identity, keeping both unique across accounts.
type AccountResolver struct {
	accounts repository.AccountRepository
	audit    *audit.AuditLogger
}

func NewAccountResolver(accounts repository.AccountRepository, auditLogger *audit.AuditLogger) *AccountResolver {
	return &AccountResolver{accounts: accounts, audit: auditLogger}
}

// ResolveForPasscodeIntent returns the account a passcode for intent should
// be issued against. Signup creates a bare account, or reuses one left
// pending by an earlier signup request. Reset requires an existing account.
func (r *AccountResolver) ResolveForPasscodeIntent(ctx context.Context, email string, intent models.PasscodeIntent) (*models.Account, error) {
	email = NormalizeEmail(email)

	switch intent {
	case models.IntentSignup:
		account, err := r.accounts.FindByEmail(ctx, email)
		if err == nil {
			return pendingOrConflict(account)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find account: %w", err)
		}

		account, err = r.accounts.Create(ctx, email, nil)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// A concurrent signup request created it first.
			account, err = r.accounts.FindByEmail(ctx, email)
			if err != nil {
				return nil, Conflict("account already exists", err)
			}
			return pendingOrConflict(account)
		}
		if err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		log.Printf("[AUTH] Created pending account %s", account.ID)
		return account, nil

	case models.IntentPasswordReset:
		account, err := r.accounts.FindByEmail(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NotFound("account not found")
		}
		if err != nil {
			return nil, fmt.Errorf("find account: %w", err)
		}
		return account, nil
	}

	return nil, BadRequest(fmt.Sprintf("unsupported intent %q", intent))
}

func pendingOrConflict(account *models.Account) (*models.Account, error) {
	if !account.Pending() {
		return nil, Conflict("account already exists")
	}
	return account, nil
}

// ResolveForFederatedLogin matches by federated subject first, then by
// email. A matching email account with no federated identity gets subject
// bound to it; one bound to a different subject is a Conflict.
func (r *AccountResolver) ResolveForFederatedLogin(ctx context.Context, subject, email string) (*models.Account, error) {
	email = NormalizeEmail(email)

	for attempt := 0; attempt < federatedResolveAttempts; attempt++ {
		account, retry, err := r.resolveFederated(ctx, subject, email)
		if !retry {
			return account, err
		}
		log.Printf("[AUTH] Federated resolve for subject %s lost a race, re-resolving", subject)
	}
	return nil, Conflict("account changed concurrently, please retry")
}

// resolveFederated runs one resolution pass. retry reports a lost race with
// a concurrent writer.
func (r *AccountResolver) resolveFederated(ctx context.Context, subject, email string) (*models.Account, bool, error) {
	account, err := r.accounts.FindByFederatedID(ctx, subject)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("find account by federated identity: %w", err)
	}

	account, err = r.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if account.HasFederatedID() {
			if *account.FederatedID == subject {
				return account, false, nil
			}
			log.Printf("[AUTH] Refusing federated login: account %s is bound to another identity", account.ID)
			return nil, false, Conflict("email is linked to a different federated identity")
		}

		bound, err := r.accounts.BindFederatedID(ctx, account.ID, subject)
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDuplicateFederatedID) {
			return nil, true, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("bind federated identity: %w", err)
		}
		log.Printf("[AUTH] Linked federated identity to account %s", bound.ID)
		r.audit.LogFederatedLink(bound.ID)
		return bound, false, nil

	case errors.Is(err, repository.ErrNotFound):
		created, err := r.accounts.Create(ctx, email, &subject)
		if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateFederatedID) {
			return nil, true, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("create account: %w", err)
		}
		log.Printf("[AUTH] Created account %s from federated login", created.ID)
		return created, false, nil

	default:
		return nil, false, fmt.Errorf("find account: %w", err)
	}
}
