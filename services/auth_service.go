package services

import (
	"chathub/auth"
	"chathub/errors"
	"chathub/repositories"
	"fmt"
	"time"
)

type IAuthService interface {
	Register(email, password string) (Token, error)
	Login(email, password string) (Token, error)
	Verify(token string) (string, error)
}

type Token string

// AuthService issues and verifies credentials. Everything else in the
// system consumes only Verify: an opaque token in, a uid out.
type AuthService struct {
	users  repositories.IUserRepository
	secret []byte
	ttl    time.Duration
}

func NewAuthService(users repositories.IUserRepository, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{users: users, secret: secret, ttl: ttl}
}

func (s *AuthService) Register(email, password string) (Token, error) {
	req := auth.RegisterRequest{Email: email, Password: password}

	// Validate before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}

	// Hashing stays in the service layer so the repository never sees a
	// plain password.
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	uid, err := s.users.CreateUser(email, hashed)
	if err != nil {
		return "", err
	}

	token, err := auth.GenerateToken(uid, email, s.secret, s.ttl)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	uid, hash, err := s.users.Credentials(email)
	if err != nil {
		// Generic error to prevent user enumeration.
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, hash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(uid, email, s.secret, s.ttl)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

// Verify is the boundary capability: an opaque credential in, the caller's
// uid out, ErrUnauthorized otherwise.
func (s *AuthService) Verify(token string) (string, error) {
	claims, err := auth.ValidateToken(token, s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	return claims.UserID, nil
}
