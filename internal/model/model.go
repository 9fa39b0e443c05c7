package model

import (
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleOrganizer = "organizer"
)

// SeedPrefix marks locally provisioned accounts on external_user_id. Seeded
// accounts bypass the identity provider entirely.
const SeedPrefix = "seed_"

// SeededOTP is the fixed bypass code seeded accounts authenticate with.
const SeededOTP = "000000"

type AccountKind uint8

const (
	AccountProvider AccountKind = iota + 1
	AccountSeeded
)

type User struct {
	ID             string    `json:"id" db:"id"`
	Email          string    `json:"email" db:"email"`
	Username       string    `json:"username" db:"username"`
	FirstName      string    `json:"firstName" db:"first_name"`
	LastName       string    `json:"lastName" db:"last_name"`
	Role           string    `json:"role" db:"role"`
	Verified       bool      `json:"verified" db:"verified"`
	ExternalUserID *string   `json:"externalUserId,omitempty" db:"external_user_id"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Kind classifies the account from external_user_id. It is derived on every
// lookup, never cached across requests.
func (u User) Kind() AccountKind {
	if u.ExternalUserID != nil && strings.HasPrefix(*u.ExternalUserID, SeedPrefix) {
		return AccountSeeded
	}
	return AccountProvider
}

type CreateUser struct {
	Email          string
	Username       string
	FirstName      string
	LastName       string
	Role           string
	Verified       bool
	ExternalUserID *string
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=user admin organizer"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// VerifiedUser is returned by registration verification: the now-verified
// record plus the session issued for it.
type VerifiedUser struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}
