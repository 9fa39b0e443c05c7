package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eventium/auth-service/config"
	"github.com/eventium/auth-service/internal/errs"
	"github.com/eventium/auth-service/internal/model"
	"github.com/eventium/auth-service/pkg/circuit_breaker"
)

//go:generate go run github.com/golang/mock/mockgen -source=provider.go -destination=mocks/mock.go

// IdentityProvider is the external contract of the identity provider: OTP
// issuance, OTP verification and session refresh. It never touches local
// storage.
type IdentityProvider interface {
	RequestOTP(ctx context.Context, email string, metadata map[string]string) error
	VerifyOTP(ctx context.Context, email, otp string) (VerifiedSession, error)
	RefreshSession(ctx context.Context, refreshToken string) (model.TokenPair, error)
}

// VerifiedSession is the provider's answer to a redeemed OTP. Session is nil
// when the provider verified the code without opening a session.
type VerifiedSession struct {
	ExternalUserID string
	Session        *model.TokenPair
}

// GatewayError carries a provider rejection upstream without leaking the raw
// HTTP response.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("identity provider: %s (status %d)", e.Message, e.StatusCode)
}

type Service struct {
	log    *zap.Logger
	client *http.Client
	cfg    config.IdentityProviderHTTPServer
	cb     circuit_breaker.CircuitBreaker
}

func NewService(log *zap.Logger, cfg config.IdentityProviderHTTPServer) *Service {
	return &Service{
		log:    log.Named("provider"),
		client: &http.Client{Timeout: time.Minute},
		cfg:    cfg,
		cb:     circuit_breaker.New(100, time.Second, 0.2, 2),
	}
}

func (s *Service) url(path string) string {
	return "http://" + net.JoinHostPort(s.cfg.Host, s.cfg.Port) + path
}

func (s *Service) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp *http.Response
	if err := s.cb.Call(func() error {
		resp, err = s.client.Do(req) //nolint:bodyclose
		return err
	}); err != nil {
		return errors.Wrap(err, "identity provider call")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var e struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &e); err != nil || e.Message == "" {
			e.Message = string(raw)
		}
		return &GatewayError{StatusCode: resp.StatusCode, Message: e.Message}
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (s *Service) RequestOTP(ctx context.Context, email string, metadata map[string]string) error {
	body := struct {
		Email    string            `json:"email"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}{Email: email, Metadata: metadata}

	if err := s.post(ctx, "/api/v1/otp", body, nil); err != nil {
		s.log.Warn("RequestOTP", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) VerifyOTP(ctx context.Context, email, otp string) (VerifiedSession, error) {
	body := struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}{Email: email, OTP: otp}

	var out struct {
		UserID  string `json:"user_id"`
		Session *struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"session"`
	}
	if err := s.post(ctx, "/api/v1/otp/verify", body, &out); err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) && ge.StatusCode < http.StatusInternalServerError {
			return VerifiedSession{}, errs.ErrInvalidOTP
		}
		return VerifiedSession{}, err
	}
	if out.UserID == "" {
		return VerifiedSession{}, errs.ErrInvalidOTP
	}

	vs := VerifiedSession{ExternalUserID: out.UserID}
	if out.Session != nil {
		vs.Session = &model.TokenPair{
			AccessToken:  out.Session.AccessToken,
			RefreshToken: out.Session.RefreshToken,
		}
	}
	return vs, nil
}

func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refreshToken}

	var out model.TokenPair
	if err := s.post(ctx, "/api/v1/token/refresh", body, &out); err != nil {
		return model.TokenPair{}, err
	}
	return out, nil
}
