package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CreatorClaims are JWT claims for form creators
type CreatorClaims struct {
	CreatorID string `json:"creatorId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for creator login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login. ExpiresAt is unset
// when tokens do not expire.
type LoginResponse struct {
	Token     string     `json:"token"`
	CreatorID string     `json:"creatorId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
