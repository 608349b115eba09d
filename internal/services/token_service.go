package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pennywise/backend/internal/config"
	"github.com/pennywise/backend/internal/models"
)

// SessionClaims binds an account id (subject) and email to a session.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionIdentity is what a valid session credential asserts.
type SessionIdentity struct {
	AccountID string
	Email     string
}

// TokenService signs and validates HS256 session credentials.
type TokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenService(cfg config.JWTConfig) (*TokenService, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("jwt secret key is required")
	}
	return &TokenService{
		secret: []byte(cfg.SecretKey),
		expiry: cfg.Expiry,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Issue returns a signed credential for account and its expiry time.
func (s *TokenService) Issue(account *models.Account) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := SessionClaims{
		Email: account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks signature, structure, issuer and expiry.
func (s *TokenService) Validate(tokenString string) (*SessionIdentity, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(token *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, Unauthorized("invalid or expired session", err)
	}
	if claims.Subject == "" {
		return nil, Unauthorized("invalid or expired session")
	}
	return &SessionIdentity{AccountID: claims.Subject, Email: claims.Email}, nil
}
