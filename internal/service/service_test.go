package service_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventium/auth-service/config"
	"github.com/eventium/auth-service/internal/errs"
	"github.com/eventium/auth-service/internal/model"
	"github.com/eventium/auth-service/internal/provider"
	mock_provider "github.com/eventium/auth-service/internal/provider/mocks"
	mock_repository "github.com/eventium/auth-service/internal/repository/mocks"
	"github.com/eventium/auth-service/internal/service"
	mock_service "github.com/eventium/auth-service/internal/service/mocks"
	"github.com/eventium/auth-service/internal/token"
	"github.com/eventium/auth-service/pkg/auth"
)

const superAdminEmail = "root@x.com"

type deps struct {
	repo   *mock_repository.MockRepository
	idp    *mock_provider.MockIdentityProvider
	issuer *mock_service.MockTokenIssuer
}

func newService(t *testing.T) (*service.Service, deps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	d := deps{
		repo:   mock_repository.NewMockRepository(ctrl),
		idp:    mock_provider.NewMockIdentityProvider(ctrl),
		issuer: mock_service.NewMockTokenIssuer(ctrl),
	}
	svc := service.NewService(d.repo, d.idp, d.issuer, nil,
		config.Auth{JWTSecret: "test-secret", SuperAdminEmail: superAdminEmail},
		zap.NewExample().Named("test"),
	)
	return svc, d
}

func seededUser() model.User {
	ext := model.SeedPrefix + "9e107d9d"
	return model.User{
		ID:             "u-1",
		Email:          "seed@x.com",
		Username:       "seed",
		Role:           model.RoleAdmin,
		Verified:       true,
		ExternalUserID: &ext,
	}
}

func providerUser(verified bool) model.User {
	ext := "ext-42"
	u := model.User{
		ID:       "u-2",
		Email:    "a@x.com",
		Username: "a",
		Role:     model.RoleUser,
		Verified: verified,
	}
	if verified {
		u.ExternalUserID = &ext
	}
	return u
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	req := model.RegisterRequest{
		Email:     "a@x.com",
		Username:  "a",
		FirstName: "A",
		LastName:  "B",
	}

	t.Run("ok", func(t *testing.T) {
		svc, d := newService(t)
		created := providerUser(false)
		d.repo.EXPECT().FindByEmail(ctx, req.Email).Return(model.User{}, errs.ErrNotFound)
		d.repo.EXPECT().Create(ctx, model.CreateUser{
			Email:     req.Email,
			Username:  req.Username,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		}).Return(created, nil)
		d.idp.EXPECT().RequestOTP(ctx, req.Email, map[string]string{"role": model.RoleUser}).Return(nil)

		user, err := svc.Register(ctx, req)
		require.NoError(t, err)
		require.Equal(t, model.RoleUser, user.Role)
		require.False(t, user.Verified)
	})

	t.Run("duplicate email found by lookup", func(t *testing.T) {
		svc, d := newService(t)
		d.repo.EXPECT().FindByEmail(ctx, req.Email).Return(providerUser(true), nil)

		_, err := svc.Register(ctx, req)
		require.ErrorIs(t, err, errs.ErrEmailExists)
	})

	t.Run("duplicate email caught by unique constraint", func(t *testing.T) {
		svc, d := newService(t)
		d.repo.EXPECT().FindByEmail(ctx, req.Email).Return(model.User{}, errs.ErrNotFound)
		d.repo.EXPECT().Create(ctx, gomock.Any()).Return(model.User{}, errs.ErrEmailExists)

		_, err := svc.Register(ctx, req)
		require.ErrorIs(t, err, errs.ErrEmailExists)
	})

	t.Run("provider failure wrapped", func(t *testing.T) {
		svc, d := newService(t)
		d.repo.EXPECT().FindByEmail(ctx, req.Email).Return(model.User{}, errs.ErrNotFound)
		d.repo.EXPECT().Create(ctx, gomock.Any()).Return(providerUser(false), nil)
		d.idp.EXPECT().RequestOTP(ctx, req.Email, gomock.Any()).Return(errors.New("provider down"))

		_, err := svc.Register(ctx, req)
		require.Error(t, err)
		require.Contains(t, err.Error(), "provider down")
	})
}

func TestService_VerifyRegistration(t *testing.T) {
	ctx := context.Background()
	session := &model.TokenPair{AccessToken: "at", RefreshToken: "rt"}

	t.Run("ok", func(t *testing.T) {
		svc, d := newService(t)
		verified := providerUser(true)
		d.idp.EXPECT().VerifyOTP(ctx, "a@x.com", "123456").
			Return(provider.VerifiedSession{ExternalUserID: "ext-42", Session: session}, nil)
		d.repo.EXPECT().MarkVerified(ctx, "a@x.com", "ext-42").Return(verified, nil)

		res, err := svc.VerifyRegistration(ctx, "a@x.com", "123456")
		require.NoError(t, err)
		require.True(t, res.User.Verified)
		require.Equal(t, "at", res.AccessToken)
		require.Equal(t, "rt", res.RefreshToken)
	})

	t.Run("invalid otp", func(t *testing.T) {
		svc, d := newService(t)
		d.idp.EXPECT().VerifyOTP(ctx, "a@x.com", "000001").
			Return(provider.VerifiedSession{}, errs.ErrInvalidOTP)

		_, err := svc.VerifyRegistration(ctx, "a@x.com", "000001")
		require.ErrorIs(t, err, errs.ErrInvalidOTP)
	})

	t.Run("no session is invalid otp", func(t *testing.T) {
		svc, d := newService(t)
		d.idp.EXPECT().VerifyOTP(ctx, "a@x.com", "123456").
			Return(provider.VerifiedSession{ExternalUserID: "ext-42"}, nil)

		_, err := svc.VerifyRegistration(ctx, "a@x.com", "123456")
		require.ErrorIs(t, err, errs.ErrInvalidOTP)
	})

	t.Run("superadmin bootstrap creates pre-verified admin once", func(t *testing.T) {
		svc, d := newService(t)
		admin := model.User{ID: "u-9", Email: superAdminEmail, Role: model.RoleAdmin, Verified: true}
		d.idp.EXPECT().VerifyOTP(ctx, superAdminEmail, "123456").
			Return(provider.VerifiedSession{ExternalUserID: "ext-9", Session: session}, nil)
		d.repo.EXPECT().FindByEmail(ctx, superAdminEmail).Return(model.User{}, errs.ErrNotFound)
		d.repo.EXPECT().Create(ctx, model.CreateUser{
			Email:    superAdminEmail,
			Username: superAdminEmail,
			Role:     model.RoleAdmin,
			Verified: true,
		}).Return(admin, nil)
		d.repo.EXPECT().MarkVerified(ctx, superAdminEmail, "ext-9").Return(admin, nil)

		res, err := svc.VerifyRegistration(ctx, superAdminEmail, "123456")
		require.NoError(t, err)
		require.Equal(t, model.RoleAdmin, res.User.Role)
	})

	t.Run("superadmin bootstrap no-ops on existing row", func(t *testing.T) {
		svc, d := newService(t)
		admin := model.User{ID: "u-9", Email: superAdminEmail, Role: model.RoleAdmin, Verified: true}
		d.idp.EXPECT().VerifyOTP(ctx, superAdminEmail, "123456").
			Return(provider.VerifiedSession{ExternalUserID: "ext-9", Session: session}, nil)
		d.repo.EXPECT().FindByEmail(ctx, superAdminEmail).Return(admin, nil)
		d.repo.EXPECT().MarkVerified(ctx, superAdminEmail, "ext-9").Return(admin, nil)

		_, err := svc.VerifyRegistration(ctx, superAdminEmail, "123456")
		require.NoError(t, err)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		svc, d := newService(t)
		d.repo.EXPECT().FindByEmail(ctx, "missing@x.com").Return(model.User{}, errs.ErrNotFound)

		_, err := svc.Login(ctx, "missing@x.com")
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("seeded account skips otp entirely", func(t *testing.T) {
		svc, d := newService(t)
		seed := seededUser()
		d.repo.EXPECT().FindByEmail(ctx, seed.Email).Return(seed, nil)

		user, err := svc.Login(ctx, seed.Email)
		require.NoError(t, err)
		require.Equal(t, seed.ID, user.ID)
	})

	t.Run("unverified gets registration otp and unauthorized", func(t *testing.T) {
		svc, d := newService(t)
		unverified := providerUser(false)
		d.repo.EXPECT().FindByEmail(ctx, unverified.Email).Return(unverified, nil)
		d.idp.EXPECT().RequestOTP(ctx, unverified.Email, map[string]string{"role": unverified.Role}).Return(nil)

		_, err := svc.Login(ctx, unverified.Email)
		require.ErrorIs(t, err, errs.ErrCompleteRegistration)
	})

	t.Run("verified gets login otp", func(t *testing.T) {
		svc, d := newService(t)
		verified := providerUser(true)
		d.repo.EXPECT().FindByEmail(ctx, verified.Email).Return(verified, nil)
		d.idp.EXPECT().RequestOTP(ctx, verified.Email, nil).Return(nil)

		user, err := svc.Login(ctx, verified.Email)
		require.NoError(t, err)
		require.Equal(t, verified.ID, user.ID)
	})
}

func TestService_VerifyLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("seeded requires exact bypass code", func(t *testing.T) {
		for _, otp := range []string{"", "0", "00000", "000001", "OOOOOO", "111111"} {
			svc, d := newService(t)
			seed := seededUser()
			d.repo.EXPECT().FindByEmail(ctx, seed.Email).Return(seed, nil)

			_, err := svc.VerifyLogin(ctx, seed.Email, otp)
			require.ErrorIs(t, err, errs.ErrInvalidMagicOTP, "otp %q", otp)
		}
	})

	t.Run("seeded bypass code mints local pair", func(t *testing.T) {
		svc, d := newService(t)
		seed := seededUser()
		d.repo.EXPECT().FindByEmail(ctx, seed.Email).Return(seed, nil)
		d.issuer.EXPECT().MintPair(seed).Return(model.TokenPair{AccessToken: "la", RefreshToken: "lr"}, nil)

		res, err := svc.VerifyLogin(ctx, seed.Email, model.SeededOTP)
		require.NoError(t, err)
		require.Equal(t, "la", res.AccessToken)
		require.Equal(t, "lr", res.RefreshToken)
		require.Equal(t, seed.ID, res.User.ID)
	})

	t.Run("provider account uses gateway session", func(t *testing.T) {
		svc, d := newService(t)
		verified := providerUser(true)
		d.repo.EXPECT().FindByEmail(ctx, verified.Email).Return(verified, nil)
		d.idp.EXPECT().VerifyOTP(ctx, verified.Email, "654321").
			Return(provider.VerifiedSession{
				ExternalUserID: "ext-42",
				Session:        &model.TokenPair{AccessToken: "pa", RefreshToken: "pr"},
			}, nil)

		res, err := svc.VerifyLogin(ctx, verified.Email, "654321")
		require.NoError(t, err)
		require.Equal(t, "pa", res.AccessToken)
		require.Equal(t, "pr", res.RefreshToken)
	})

	t.Run("provider account no session fails validation", func(t *testing.T) {
		svc, d := newService(t)
		verified := providerUser(true)
		d.repo.EXPECT().FindByEmail(ctx, verified.Email).Return(verified, nil)
		d.idp.EXPECT().VerifyOTP(ctx, verified.Email, "654321").
			Return(provider.VerifiedSession{ExternalUserID: "ext-42"}, nil)

		_, err := svc.VerifyLogin(ctx, verified.Email, "654321")
		require.ErrorIs(t, err, errs.ErrInvalidOTP)
	})
}

func TestService_ResendOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("registration resend on verified conflicts", func(t *testing.T) {
		svc, d := newService(t)
		verified := providerUser(true)
		d.repo.EXPECT().FindByEmail(ctx, verified.Email).Return(verified, nil)

		_, err := svc.ResendRegistrationOTP(ctx, verified.Email)
		require.ErrorIs(t, err, errs.ErrAlreadyVerified)
	})

	t.Run("registration resend carries role metadata", func(t *testing.T) {
		svc, d := newService(t)
		unverified := providerUser(false)
		d.repo.EXPECT().FindByEmail(ctx, unverified.Email).Return(unverified, nil)
		d.idp.EXPECT().RequestOTP(ctx, unverified.Email, map[string]string{"role": unverified.Role}).Return(nil)

		user, err := svc.ResendRegistrationOTP(ctx, unverified.Email)
		require.NoError(t, err)
		require.Equal(t, unverified.ID, user.ID)
	})

	t.Run("login resend on unverified unauthorized", func(t *testing.T) {
		svc, d := newService(t)
		unverified := providerUser(false)
		d.repo.EXPECT().FindByEmail(ctx, unverified.Email).Return(unverified, nil)

		_, err := svc.ResendLoginOTP(ctx, unverified.Email)
		require.ErrorIs(t, err, errs.ErrNotVerified)
	})

	t.Run("login resend ok", func(t *testing.T) {
		svc, d := newService(t)
		verified := providerUser(true)
		d.repo.EXPECT().FindByEmail(ctx, verified.Email).Return(verified, nil)
		d.idp.EXPECT().RequestOTP(ctx, verified.Email, nil).Return(nil)

		_, err := svc.ResendLoginOTP(ctx, verified.Email)
		require.NoError(t, err)
	})
}

func TestService_RefreshToken(t *testing.T) {
	ctx := context.Background()

	refreshClaims := func(email string) *auth.Claims {
		return &auth.Claims{
			UserID:    "u-1",
			Email:     email,
			Role:      model.RoleAdmin,
			TokenType: string(token.KindRefresh),
		}
	}

	t.Run("local refresh for seeded user never reaches the provider", func(t *testing.T) {
		svc, d := newService(t)
		seed := seededUser()
		d.issuer.EXPECT().Verify("local-refresh").Return(refreshClaims(seed.Email), nil)
		d.repo.EXPECT().FindByEmail(ctx, seed.Email).Return(seed, nil)
		d.issuer.EXPECT().MintPair(seed).Return(model.TokenPair{AccessToken: "na", RefreshToken: "nr"}, nil)

		pair, err := svc.RefreshToken(ctx, "local-refresh")
		require.NoError(t, err)
		require.Equal(t, "na", pair.AccessToken)
		require.Equal(t, "nr", pair.RefreshToken)
	})

	t.Run("local token for deleted account is unauthorized", func(t *testing.T) {
		svc, d := newService(t)
		d.issuer.EXPECT().Verify("local-refresh").Return(refreshClaims("gone@x.com"), nil)
		d.repo.EXPECT().FindByEmail(ctx, "gone@x.com").Return(model.User{}, errs.ErrNotFound)

		_, err := svc.RefreshToken(ctx, "local-refresh")
		require.ErrorIs(t, err, errs.ErrSessionExpired)
	})

	t.Run("local token for now provider-managed account is unauthorized", func(t *testing.T) {
		svc, d := newService(t)
		migrated := providerUser(true)
		d.issuer.EXPECT().Verify("local-refresh").Return(refreshClaims(migrated.Email), nil)
		d.repo.EXPECT().FindByEmail(ctx, migrated.Email).Return(migrated, nil)

		_, err := svc.RefreshToken(ctx, "local-refresh")
		require.ErrorIs(t, err, errs.ErrSessionExpired)
	})

	t.Run("undecodable token falls through to provider", func(t *testing.T) {
		svc, d := newService(t)
		d.issuer.EXPECT().Verify("provider-refresh").Return(nil, errs.ErrInvalidToken)
		d.idp.EXPECT().RefreshSession(ctx, "provider-refresh").
			Return(model.TokenPair{AccessToken: "pa", RefreshToken: "pr"}, nil)

		pair, err := svc.RefreshToken(ctx, "provider-refresh")
		require.NoError(t, err)
		require.Equal(t, "pa", pair.AccessToken)
	})

	t.Run("access-typed local token falls through to provider", func(t *testing.T) {
		svc, d := newService(t)
		claims := refreshClaims("seed@x.com")
		claims.TokenType = ""
		d.issuer.EXPECT().Verify("local-access").Return(claims, nil)
		d.idp.EXPECT().RefreshSession(ctx, "local-access").
			Return(model.TokenPair{}, &provider.GatewayError{StatusCode: 401, Message: "Invalid refresh token"})

		_, err := svc.RefreshToken(ctx, "local-access")
		require.ErrorIs(t, err, errs.ErrSessionExpired)
	})

	t.Run("provider expiry messages normalize to session expired", func(t *testing.T) {
		for _, msg := range []string{"Token expired", "Invalid refresh token", "Already used"} {
			svc, d := newService(t)
			d.issuer.EXPECT().Verify("rt").Return(nil, errs.ErrInvalidToken)
			d.idp.EXPECT().RefreshSession(ctx, "rt").
				Return(model.TokenPair{}, &provider.GatewayError{StatusCode: 401, Message: msg})

			_, err := svc.RefreshToken(ctx, "rt")
			require.ErrorIs(t, err, errs.ErrSessionExpired, "message %q", msg)
		}
	})

	t.Run("incomplete provider session is unauthorized", func(t *testing.T) {
		svc, d := newService(t)
		d.issuer.EXPECT().Verify("rt").Return(nil, errs.ErrInvalidToken)
		d.idp.EXPECT().RefreshSession(ctx, "rt").
			Return(model.TokenPair{AccessToken: "pa"}, nil)

		_, err := svc.RefreshToken(ctx, "rt")
		require.ErrorIs(t, err, errs.ErrInvalidRefreshToken)
	})

	t.Run("other provider failure is internal", func(t *testing.T) {
		svc, d := newService(t)
		d.issuer.EXPECT().Verify("rt").Return(nil, errs.ErrInvalidToken)
		d.idp.EXPECT().RefreshSession(ctx, "rt").
			Return(model.TokenPair{}, errors.New("connection reset"))

		_, err := svc.RefreshToken(ctx, "rt")
		require.Error(t, err)
		require.False(t, errs.IsUnauthorized(err))
		require.Contains(t, err.Error(), "failed to refresh session")
	})
}

func TestService_CurrentUser(t *testing.T) {
	ctx := context.Background()
	svc, d := newService(t)
	verified := providerUser(true)
	d.repo.EXPECT().FindByID(ctx, verified.ID).Return(verified, nil)

	user, err := svc.CurrentUser(ctx, verified.ID)
	require.NoError(t, err)
	require.Equal(t, verified.Email, user.Email)
}
