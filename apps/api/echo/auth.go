package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
)

const (
	contextTokenKey     = "token"
	contextPrincipalKey = "principal"
	contextScopeKey     = "scope"
	bearerPrefix        = "Bearer "
)

var (
	errMissingToken = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
)

// Claims represents the authorization claims transmitted via a JWT. Email identifies the caller.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func NewClaims(conf *core.Config, email string) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   core.CleanString(email, true /* lower */),
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: core.CleanString(email, true /* lower */),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(secret []byte, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// newJWTConfig is the JWT auth middleware config: HS256 bearer tokens carrying Claims.
func newJWTConfig(secret []byte) echojwt.Config {
	return echojwt.Config{
		SigningKey:    secret,
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		ContextKey:    contextTokenKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims { return new(Claims) },
		ErrorHandler:  jwtErrorHandler,
	}
}

// jwtErrorHandler tells requests without a bearer token apart from those with a bad one.
func jwtErrorHandler(ctx echo.Context, err error) error {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, bearerPrefix) || len(auth) == len(bearerPrefix) {
		return errMissingToken.WithInternal(err)
	}
	return errInvalidToken.WithInternal(err)
}

// getContextClaims returns the Claims of the authenticated token. Tokens without an email are rejected.
func getContextClaims(ctx echo.Context) (Claims, error) {
	token, ok := ctx.Get(contextTokenKey).(*jwt.Token)
	if !ok {
		return Claims{}, errMissingToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Email == "" {
		return Claims{}, errInvalidToken
	}
	return *claims, nil
}

func getContextPrincipal(ctx echo.Context) (access.Principal, access.Scope, error) {
	p, ok := ctx.Get(contextPrincipalKey).(access.Principal)
	if !ok {
		return access.Principal{}, access.Scope{}, errors.New("principal not found in echo.Context")
	}
	scope, _ := ctx.Get(contextScopeKey).(access.Scope)
	return p, scope, nil
}
