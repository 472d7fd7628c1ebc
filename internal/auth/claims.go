package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity describes the account fields embedded in a token.
type Identity struct {
	AccountID string
	Name      string
	Email     string
	Phone     string
	Provider  string
}

// CustomClaims extends JWT standard claims with SwitchSync-specific fields.
type CustomClaims struct {
	jwt.RegisteredClaims
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// AccountID returns the account the token was issued for.
func (c *CustomClaims) AccountID() string {
	return c.Subject
}

// GenerateAccessToken creates a signed JWT access token for an account.
// Access tokens are short-lived (configured TTL) and validated by signature only (no DB hit).
func GenerateAccessToken(identity Identity, secret string, ttlMinutes int) (string, error) {
	if identity.AccountID == "" {
		return "", fmt.Errorf("%w: account id is required", ErrTokenInvalid)
	}
	if ttlMinutes <= 0 {
		ttlMinutes = 60 //nolint:mnd // default 1-hour access token TTL
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		Name:     identity.Name,
		Email:    identity.Email,
		Phone:    identity.Phone,
		Provider: identity.Provider,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT access token, returning the custom claims.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}
