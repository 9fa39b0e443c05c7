package handler

import (
	"context"

	"github.com/eventium/auth-service/internal/model"
	"github.com/eventium/auth-service/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

var _ AuthService = (*service.Service)(nil)

type AuthService interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.User, error)
	VerifyRegistration(ctx context.Context, email, otp string) (model.VerifiedUser, error)
	Login(ctx context.Context, email string) (model.User, error)
	VerifyLogin(ctx context.Context, email, otp string) (model.LoginResult, error)
	ResendRegistrationOTP(ctx context.Context, email string) (model.User, error)
	ResendLoginOTP(ctx context.Context, email string) (model.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (model.TokenPair, error)
	CurrentUser(ctx context.Context, id string) (model.User, error)
}
