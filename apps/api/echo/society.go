package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/society"
)

type societyApi struct {
	svc society.Service
}

func registerSocietyAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	principal echo.MiddlewareFunc,
	svc society.Service,
) {
	api := societyApi{svc: svc}
	manage := capabilityMiddleware(access.CapManageSocieties)

	sg := g.Group("/societies", jwt, principal)
	sg.GET("", api.querySocieties)
	sg.GET("/count", api.countSocieties)
	sg.POST("", api.createSociety, manage)
	sg.PUT("/:id", api.updateSociety, manage)
	sg.DELETE("/:id", api.deleteSociety, manage)

	og := g.Group("/owners", jwt, principal)
	og.GET("", api.queryOwners)
	og.POST("", api.createOwner, manage)
	og.PUT("/:id", api.updateOwner, manage)
	og.DELETE("/:id", api.deleteOwner, manage)
}

// Handlers

func (api *societyApi) querySocieties(ctx echo.Context) error {
	_, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	socs, err := api.svc.QuerySocieties(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "querying societies")
	}
	if socs == nil {
		socs = []society.Society{}
	}
	return ctx.JSON(http.StatusOK, socs)
}

func (api *societyApi) countSocieties(ctx echo.Context) error {
	_, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	count, err := api.svc.CountSocieties(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "counting societies")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api *societyApi) createSociety(ctx echo.Context) error {
	p, _, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data society.NewSociety
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSociety")
	}
	soc, err := api.svc.CreateSociety(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating society")
	}
	return ctx.JSON(http.StatusCreated, soc)
}

func (api *societyApi) updateSociety(ctx echo.Context) error {
	p, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data society.UpdateSociety
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSociety")
	}
	soc, err := api.svc.UpdateSociety(ctx.Request().Context(), p, scope, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating society")
	}
	return ctx.JSON(http.StatusOK, soc)
}

func (api *societyApi) deleteSociety(ctx echo.Context) error {
	p, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSociety(ctx.Request().Context(), p, scope, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting society")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *societyApi) queryOwners(ctx echo.Context) error {
	_, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	owners, err := api.svc.QueryOwners(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "querying owners")
	}
	if owners == nil {
		owners = []society.FlatOwner{}
	}
	return ctx.JSON(http.StatusOK, owners)
}

func (api *societyApi) createOwner(ctx echo.Context) error {
	_, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data society.NewOwner
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOwner")
	}
	// unknown societies are reported by the service
	if data.SocietyName != "" && !scope.Allows(data.SocietyName) {
		if _, err = api.svc.GetSociety(ctx.Request().Context(), data.SocietyName); err == nil {
			return access.ErrOutOfScope
		}
	}
	owner, err := api.svc.CreateOwner(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating owner")
	}
	return ctx.JSON(http.StatusCreated, owner)
}

func (api *societyApi) updateOwner(ctx echo.Context) error {
	p, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data society.UpdateOwner
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateOwner")
	}
	owner, err := api.svc.UpdateOwner(ctx.Request().Context(), p, scope, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating owner")
	}
	return ctx.JSON(http.StatusOK, owner)
}

func (api *societyApi) deleteOwner(ctx echo.Context) error {
	p, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteOwner(ctx.Request().Context(), p, scope, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting owner")
	}
	return ctx.NoContent(http.StatusNoContent)
}
