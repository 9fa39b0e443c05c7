package token

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/eventium/auth-service/internal/errs"
	"github.com/eventium/auth-service/internal/model"
	"github.com/eventium/auth-service/pkg/auth"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	accessTTL  = 24 * time.Hour
	refreshTTL = 30 * 24 * time.Hour
)

// Issuer mints and verifies locally signed token pairs for seeded accounts.
// The signing secret is process-wide and read-only after startup.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

func (i *Issuer) Mint(user model.User, kind Kind) (string, error) {
	ttl := accessTTL
	claims := &auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}
	if kind == KindRefresh {
		ttl = refreshTTL
		claims.TokenType = string(KindRefresh)
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// MintPair issues a fresh access/refresh pair for the user.
func (i *Issuer) MintPair(user model.User) (model.TokenPair, error) {
	access, err := i.Mint(user, KindAccess)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := i.Mint(user, KindRefresh)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) Verify(tokenStr string) (*auth.Claims, error) {
	claims := new(auth.Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errs.ErrInvalidToken
	}
	return claims, nil
}
