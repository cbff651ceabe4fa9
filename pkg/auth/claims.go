package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role separates back-office operators from storefront customers.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Subject string
	Email   string
	Role    Role
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented by callers.
type AccessTokenClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}
