package errs

import (
	"errors"
)

// Domain errors surfaced by the auth workflows. Handlers map these to HTTP
// statuses; anything unrecognized is treated as internal.
var (
	ErrNotFound             = errors.New("user not found")
	ErrEmailExists          = errors.New("Email already exists")
	ErrAlreadyVerified      = errors.New("User already verified")
	ErrNotVerified          = errors.New("User not verified")
	ErrCompleteRegistration = errors.New("complete registration to continue")
	ErrInvalidOTP           = errors.New("Invalid or expired OTP")
	ErrInvalidMagicOTP      = errors.New("Invalid OTP for seeded account")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidRefreshToken  = errors.New("Invalid refresh token")
	ErrSessionExpired       = errors.New("Session expired. Please log in again")
)

func IsConflict(err error) bool {
	return errors.Is(err, ErrEmailExists) || errors.Is(err, ErrAlreadyVerified)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidOTP)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNotVerified) ||
		errors.Is(err, ErrCompleteRegistration) ||
		errors.Is(err, ErrInvalidMagicOTP) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrSessionExpired)
}

type ValidationErrorResponse struct {
	Message string `json:"message"`
	Errors  struct {
		AdditionalProperties string `json:"additionalProperties"`
	} `json:"errors"`
}
