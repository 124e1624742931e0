package auth

import (
	"errors"
	"fmt"
	"time"

	"commerce-service/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in the role claim
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

var signingMethod = jwt.SigningMethodHS256

// Claims is the token issued to API clients
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller may modify the catalog
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// MintToken signs a token for the user valid for cfg.TokenTTL. The service
// itself only verifies tokens; cmd/token issues them for operators.
func MintToken(cfg config.AuthConfig, now time.Time, userID int64, role string) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("jwt secret is required")
	}
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	if role == "" {
		role = RoleCustomer
	}

	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseToken validates the signature, issuer and expiry and returns the claims
func ParseToken(cfg config.AuthConfig, tokenString string) (*Claims, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}
