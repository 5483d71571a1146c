package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core/access"
)

// principalMiddleware resolves the token's email to an admin or security guard and their scope.
// Anybody else is rejected.
func principalMiddleware(svc access.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			reqCtx := ctx.Request().Context()
			p, err := svc.Resolve(reqCtx, claims.Email)
			if err != nil {
				return err
			}
			scope, err := svc.ScopeOf(reqCtx, p)
			if err != nil {
				return errors.Wrap(err, "computing scope")
			}
			ctx.Set(contextPrincipalKey, p)
			ctx.Set(contextScopeKey, scope)
			return next(ctx)
		}
	}
}

func capabilityMiddleware(c access.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, _, err := getContextPrincipal(ctx)
			if err != nil {
				return err
			}
			if !p.Can(c) {
				return access.ErrForbidden
			}
			return next(ctx)
		}
	}
}
