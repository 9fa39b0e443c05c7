package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eventium/auth-service/config"
	"github.com/eventium/auth-service/internal/errs"
	"github.com/eventium/auth-service/internal/model"
	"github.com/eventium/auth-service/internal/provider"
	"github.com/eventium/auth-service/internal/repository"
	"github.com/eventium/auth-service/internal/token"
	"github.com/eventium/auth-service/pkg/auth"
	"github.com/eventium/auth-service/pkg/kafka"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

// TokenIssuer mints and verifies the locally signed token pairs used by
// seeded accounts.
type TokenIssuer interface {
	Mint(user model.User, kind token.Kind) (string, error)
	MintPair(user model.User) (model.TokenPair, error)
	Verify(tokenStr string) (*auth.Claims, error)
}

var _ TokenIssuer = (*token.Issuer)(nil)

// Service orchestrates registration, verification, login and token refresh.
// Every workflow re-derives the seeded/provider account classification from
// the stored record; nothing is cached across requests.
type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	provider provider.IdentityProvider
	issuer   TokenIssuer
	enqueuer Enqueuer
	cfg      config.Auth
}

func NewService(repo repository.Repository, idp provider.IdentityProvider, issuer TokenIssuer, enqueuer Enqueuer, cfg config.Auth, log *zap.Logger) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		provider: idp,
		issuer:   issuer,
		enqueuer: enqueuer,
		cfg:      cfg,
	}
}

// Register creates an unverified user and asks the provider to deliver a
// registration OTP. Success does not imply verification.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return model.User{}, errs.ErrEmailExists
	} else if !errs.IsNotFound(err) {
		return model.User{}, errors.Wrap(err, "register: lookup")
	}

	user, err := s.repo.Create(ctx, model.CreateUser{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		// the storage unique constraint is the second line of defense:
		// a concurrent registration losing the race lands here
		if errs.IsConflict(err) {
			return model.User{}, err
		}
		return model.User{}, errors.Wrap(err, "register: create user")
	}

	if err := s.provider.RequestOTP(ctx, req.Email, map[string]string{"role": user.Role}); err != nil {
		return model.User{}, errors.Wrap(err, "register: request otp")
	}

	s.enqueue(kafka.EventUserRegistered, user)
	return user, nil
}

// VerifyRegistration redeems a registration OTP, marks the user verified and
// returns the provider session. The superadmin email bootstraps its own
// pre-verified admin row at most once.
func (s *Service) VerifyRegistration(ctx context.Context, email, otp string) (model.VerifiedUser, error) {
	vs, err := s.provider.VerifyOTP(ctx, email, otp)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidOTP) {
			return model.VerifiedUser{}, err
		}
		return model.VerifiedUser{}, errors.Wrap(err, "verify registration")
	}
	if vs.Session == nil {
		return model.VerifiedUser{}, errs.ErrInvalidOTP
	}

	if s.cfg.SuperAdminEmail != "" && email == s.cfg.SuperAdminEmail {
		if err := s.bootstrapSuperAdmin(ctx, email); err != nil {
			return model.VerifiedUser{}, err
		}
	}

	user, err := s.repo.MarkVerified(ctx, email, vs.ExternalUserID)
	if err != nil {
		if errs.IsNotFound(err) {
			return model.VerifiedUser{}, err
		}
		return model.VerifiedUser{}, errors.Wrap(err, "verify registration: mark verified")
	}

	s.enqueue(kafka.EventUserVerified, user)
	return model.VerifiedUser{
		User:         user,
		AccessToken:  vs.Session.AccessToken,
		RefreshToken: vs.Session.RefreshToken,
	}, nil
}

// bootstrapSuperAdmin creates the configured superadmin row pre-verified with
// the admin role. Idempotent: a concurrent or repeated bootstrap no-ops on
// the existing row.
func (s *Service) bootstrapSuperAdmin(ctx context.Context, email string) error {
	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errs.IsNotFound(err) {
		return errors.Wrap(err, "superadmin bootstrap: lookup")
	}
	if _, err := s.repo.Create(ctx, model.CreateUser{
		Email:    email,
		Username: email,
		Role:     model.RoleAdmin,
		Verified: true,
	}); err != nil && !errs.IsConflict(err) {
		return errors.Wrap(err, "superadmin bootstrap: create")
	}
	return nil
}

// Login starts an OTP login. Seeded accounts skip OTP entirely and
// authenticate through VerifyLogin's fixed code. An unverified account gets a
// registration OTP instead of a login one, nudging it back into the
// registration flow.
func (s *Service) Login(ctx context.Context, email string) (model.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errs.IsNotFound(err) {
			return model.User{}, err
		}
		return model.User{}, errors.Wrap(err, "login: lookup")
	}

	if user.Kind() == model.AccountSeeded {
		return user, nil
	}

	if !user.Verified {
		if err := s.provider.RequestOTP(ctx, email, map[string]string{"role": user.Role}); err != nil {
			return model.User{}, errors.Wrap(err, "login: request registration otp")
		}
		return model.User{}, errs.ErrCompleteRegistration
	}

	if err := s.provider.RequestOTP(ctx, email, nil); err != nil {
		return model.User{}, errors.Wrap(err, "login: request otp")
	}
	return user, nil
}

// VerifyLogin redeems a login OTP. Seeded accounts require the exact bypass
// code and get locally minted tokens; provider accounts get the provider
// session.
func (s *Service) VerifyLogin(ctx context.Context, email, otp string) (model.LoginResult, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errs.IsNotFound(err) {
			return model.LoginResult{}, err
		}
		return model.LoginResult{}, errors.Wrap(err, "verify login: lookup")
	}

	if user.Kind() == model.AccountSeeded {
		if otp != model.SeededOTP {
			return model.LoginResult{}, errs.ErrInvalidMagicOTP
		}
		pair, err := s.issuer.MintPair(user)
		if err != nil {
			return model.LoginResult{}, errors.Wrap(err, "verify login: mint tokens")
		}
		s.enqueue(kafka.EventUserLogin, user)
		return model.LoginResult{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			User:         user,
		}, nil
	}

	vs, err := s.provider.VerifyOTP(ctx, email, otp)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidOTP) {
			return model.LoginResult{}, err
		}
		return model.LoginResult{}, errors.Wrap(err, "verify login")
	}
	if vs.Session == nil {
		return model.LoginResult{}, errs.ErrInvalidOTP
	}

	s.enqueue(kafka.EventUserLogin, user)
	return model.LoginResult{
		AccessToken:  vs.Session.AccessToken,
		RefreshToken: vs.Session.RefreshToken,
		User:         user,
	}, nil
}

func (s *Service) ResendRegistrationOTP(ctx context.Context, email string) (model.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errs.IsNotFound(err) {
			return model.User{}, err
		}
		return model.User{}, errors.Wrap(err, "resend registration otp: lookup")
	}
	if user.Verified {
		return model.User{}, errs.ErrAlreadyVerified
	}
	if err := s.provider.RequestOTP(ctx, email, map[string]string{"role": user.Role}); err != nil {
		return model.User{}, errors.Wrap(err, "resend registration otp")
	}
	return user, nil
}

func (s *Service) ResendLoginOTP(ctx context.Context, email string) (model.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errs.IsNotFound(err) {
			return model.User{}, err
		}
		return model.User{}, errors.Wrap(err, "resend login otp: lookup")
	}
	if !user.Verified {
		return model.User{}, errs.ErrNotVerified
	}
	if err := s.provider.RequestOTP(ctx, email, nil); err != nil {
		return model.User{}, errors.Wrap(err, "resend login otp")
	}
	return user, nil
}

// RefreshToken serves both token families from one endpoint: first the local
// issuer path for seeded tokens, then the provider path. A locally minted
// refresh token never reaches the provider.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	pair, handled, err := s.refreshLocal(ctx, refreshToken)
	if handled {
		return pair, err
	}
	return s.refreshViaProvider(ctx, refreshToken)
}

// refreshLocal attempts the seeded-token path. handled=false means the token
// did not decode as a locally issued refresh token and the provider path
// should run.
func (s *Service) refreshLocal(ctx context.Context, refreshToken string) (model.TokenPair, bool, error) {
	claims, err := s.issuer.Verify(refreshToken)
	if err != nil || claims.TokenType != string(token.KindRefresh) {
		return model.TokenPair{}, false, nil
	}

	user, err := s.repo.FindByEmail(ctx, claims.Email)
	if err != nil {
		if errs.IsNotFound(err) {
			return model.TokenPair{}, true, errs.ErrSessionExpired
		}
		return model.TokenPair{}, true, errors.Wrap(err, "refresh: lookup")
	}
	// a seeded-style token presented for a now-provider-managed account
	if user.Kind() != model.AccountSeeded {
		return model.TokenPair{}, true, errs.ErrSessionExpired
	}

	pair, err := s.issuer.MintPair(user)
	if err != nil {
		return model.TokenPair{}, true, errors.Wrap(err, "refresh: mint tokens")
	}
	return pair, true, nil
}

func (s *Service) refreshViaProvider(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	pair, err := s.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		var ge *provider.GatewayError
		if errors.As(err, &ge) && isExpiredSession(ge.Message) {
			return model.TokenPair{}, errs.ErrSessionExpired
		}
		return model.TokenPair{}, errors.Wrap(err, "failed to refresh session")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return model.TokenPair{}, errs.ErrInvalidRefreshToken
	}
	return pair, nil
}

var expiredSessionMarkers = []string{
	"Token expired",
	"Invalid refresh token",
	"Already used",
}

func isExpiredSession(msg string) bool {
	for _, marker := range expiredSessionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// CurrentUser resolves the authenticated identity back to its stored record.
func (s *Service) CurrentUser(ctx context.Context, id string) (model.User, error) {
	return s.repo.FindByID(ctx, id)
}
