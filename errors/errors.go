package errors

import "fmt"

var (
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrForbidden        = fmt.Errorf("not a member of this room")
	ErrNotFound         = fmt.Errorf("not found")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrAlreadyExists    = fmt.Errorf("already exists")

	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)
