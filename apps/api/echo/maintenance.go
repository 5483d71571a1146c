package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/maintenance"
)

type maintenanceApi struct {
	svc      maintenance.Service
	validate *validator.Validate
}

func registerMaintenanceAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	principal echo.MiddlewareFunc,
	svc maintenance.Service,
	validate *validator.Validate,
) {
	api := maintenanceApi{svc: svc, validate: validate}

	mg := g.Group("/maintenance", jwt)

	// owner endpoints: the token's email is the owner's
	mg.GET("/current", api.current)
	mg.POST("/payments", api.pay)
	mg.GET("/history", api.history)
	mg.GET("/pending", api.pending)

	// admin endpoints
	ag := mg.Group("", principal)
	ag.GET("/records", api.query)
	ag.GET("/records/count", api.count)
	ag.GET("/records/:id", api.retrieve)
	ag.PUT("/records/:id", api.update)
	ag.POST("/penalty", api.previewPenalty)
}

// Handlers

func (api *maintenanceApi) current(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	st, err := api.svc.EnsureCurrentPeriodRecord(ctx.Request().Context(), claims.Email, time.Time{})
	if err != nil {
		return errors.Wrap(err, "ensuring current record")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *maintenanceApi) pay(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data maintenance.NewPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	data.Email = claims.Email // owners only pay for themselves

	rec, err := api.svc.RecordPayment(ctx.Request().Context(), data, time.Time{})
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *maintenanceApi) history(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	recs, err := api.svc.History(ctx.Request().Context(), claims.Email)
	if err != nil {
		return errors.Wrap(err, "listing history")
	}
	if recs == nil {
		recs = []maintenance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *maintenanceApi) pending(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	summary, err := api.svc.Pending(ctx.Request().Context(), claims.Email, time.Time{})
	if err != nil {
		return errors.Wrap(err, "listing pending payments")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *maintenanceApi) filter(ctx echo.Context) (maintenance.QueryFilter, error) {
	var q RecordsQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &q); err != nil {
		return maintenance.QueryFilter{}, core.NewValidationError(err)
	}
	return q.Filter(api.svc.Location())
}

func (api *maintenanceApi) query(ctx echo.Context) error {
	_, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	recs, err := api.svc.Query(ctx.Request().Context(), scope, filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	if recs == nil {
		recs = []maintenance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *maintenanceApi) count(ctx echo.Context) error {
	_, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.Count(ctx.Request().Context(), scope, filter)
	if err != nil {
		return errors.Wrap(err, "counting records")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *maintenanceApi) retrieve(ctx echo.Context) error {
	_, scope, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.Get(ctx.Request().Context(), scope, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *maintenanceApi) update(ctx echo.Context) error {
	p, _, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data maintenance.UpdateRecord
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	rec, err := api.svc.Update(ctx.Request().Context(), p.Email, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *maintenanceApi) previewPenalty(ctx echo.Context) error {
	var data PenaltyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PenaltyRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	loc := api.svc.Location()
	due, err := core.ParseDateField("due_date", data.DueDate, loc)
	if err != nil {
		return err
	}
	var asOf time.Time
	if data.AsOf != "" {
		if asOf, err = core.ParseDateField("as_of", data.AsOf, loc); err != nil {
			return err
		}
	}

	return ctx.JSON(http.StatusOK, PenaltyResponse{Penalty: api.svc.Preview(data.BaseAmount, due, asOf)})
}

type (
	CountResponse struct {
		Count int `json:"count"`
	}

	PenaltyRequest struct {
		BaseAmount *decimal.Decimal `json:"base_amount"`
		DueDate    string           `json:"due_date" validate:"required,date"`
		AsOf       string           `json:"as_of" validate:"omitempty,date"`
	}

	PenaltyResponse struct {
		Penalty decimal.Decimal `json:"penalty"`
	}
)

func (pr *PenaltyRequest) Validate(validate *validator.Validate) error {
	pr.DueDate = core.CleanString(pr.DueDate)
	pr.AsOf = core.CleanString(pr.AsOf)
	if err := validate.Struct(pr); err != nil {
		return err
	}
	if pr.BaseAmount != nil && pr.BaseAmount.IsNegative() {
		return core.NewValidationError(nil, core.FieldError{Field: "base_amount", Error: "base amount cannot be negative"})
	}
	return nil
}
