package services

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// FederatedIdentity is what a verified identity token asserts.
type FederatedIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// IdentityVerifier validates a federated identity token.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*FederatedIdentity, error)
}

type tokenValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// GoogleIdentityVerifier checks Google ID tokens against the configured
// OAuth client id. Signature keys are fetched from Google and cached by the
// idtoken package.
type GoogleIdentityVerifier struct {
	clientID  string
	validator tokenValidator
}

func NewGoogleIdentityVerifier(ctx context.Context, clientID string, httpClient *http.Client) (*GoogleIdentityVerifier, error) {
	validator, err := idtoken.NewValidator(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return &GoogleIdentityVerifier{clientID: clientID, validator: validator}, nil
}

func (v *GoogleIdentityVerifier) Verify(ctx context.Context, token string) (*FederatedIdentity, error) {
	if v.clientID == "" {
		return nil, Misconfigured("federated login is not configured")
	}
	if strings.TrimSpace(token) == "" {
		return nil, Unauthorized("invalid identity token")
	}

	payload, err := v.validator.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, Unauthorized("invalid identity token", err)
	}

	identity := &FederatedIdentity{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		identity.Email = email
	}
	switch verified := payload.Claims["email_verified"].(type) {
	case bool:
		identity.EmailVerified = verified
	case string:
		identity.EmailVerified = verified == "true"
	}

	if identity.Subject == "" || identity.Email == "" {
		return nil, Unauthorized("identity token is missing subject or email")
	}
	return identity, nil
}
