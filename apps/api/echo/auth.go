package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/session"
)

const (
	contextTokenKey   = "userToken"
	contextSessionKey = "session"
)

// Claims represents the authorization claims of the identity provider's JWTs. The subject is the uid.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

func (c Claims) Identity() member.Identity {
	return member.Identity{UID: c.Subject, Email: c.Email}
}

func newJWTConfig(conf *core.Config, tokenLookup string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
		TokenLookup:   tokenLookup,
	}
}

// NewClaims returns the claims the identity provider would issue for id, now.
func NewClaims(conf *core.Config, id member.Identity) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   id.UID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: id.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextSession(ctx echo.Context) (session.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(session.Session); ok {
		return sess, nil
	}
	return session.Session{}, errUnauthorized
}
