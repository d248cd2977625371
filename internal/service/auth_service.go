package service

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"astapp/internal/config"
	"astapp/internal/model"
)

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrMissingCredentials   = errors.New("creator username and password are required")
	ErrCreatorLoginDisabled = errors.New("creator login is not configured")
	ErrInvalidToken         = errors.New("invalid or expired token")
)

// AuthService handles creator authentication
type AuthService struct {
	username  string
	password  string
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		username:  cfg.CreatorUsername,
		password:  cfg.CreatorPassword,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  cfg.TokenTTL,
	}
}

// Login validates creator credentials and returns a signed creator token.
// The creator id is the username, so forms stay owned across logins.
func (s *AuthService) Login(username, password string) (*model.LoginResponse, error) {
	if s.username == "" || s.password == "" {
		return nil, ErrCreatorLoginDisabled
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}
	return s.IssueToken(username)
}

// IssueToken signs a token for creatorID
func (s *AuthService) IssueToken(creatorID string) (*model.LoginResponse, error) {
	now := time.Now()
	claims := &model.CreatorClaims{
		CreatorID: creatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  creatorID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.tokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.tokenTTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	resp := &model.LoginResponse{
		Token:     tokenString,
		CreatorID: creatorID,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = &claims.ExpiresAt.Time
	}
	return resp, nil
}

// ValidateCreatorToken validates a creator JWT and returns claims
func (s *AuthService) ValidateCreatorToken(tokenString string) (*model.CreatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.CreatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.CreatorClaims)
	if !ok || !token.Valid || claims.CreatorID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
