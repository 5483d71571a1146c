package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/maintenance"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field,-other`; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// RecordsQuery holds the query params of the maintenance records list.
type RecordsQuery struct {
	Status  []string `query:"status"`
	Society string   `query:"society"`
	DueFrom string   `query:"due_from"`
	DueTo   string   `query:"due_to"`
}

func (q RecordsQuery) Filter(loc *time.Location) (maintenance.QueryFilter, error) {
	filter := maintenance.QueryFilter{Society: core.CleanString(q.Society)}
	for _, s := range q.Status {
		for _, st := range strings.Split(s, ",") {
			status := maintenance.Status(core.CleanString(st))
			if status == "" {
				continue
			}
			if !status.Valid() {
				return maintenance.QueryFilter{}, core.NewValidationError(nil, core.FieldError{
					Field: "status",
					Error: "status must be one of: Pending, Paid, Overdue",
				})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if q.DueFrom != "" {
		if filter.DueFrom, err = core.ParseDateField("due_from", q.DueFrom, loc); err != nil {
			return maintenance.QueryFilter{}, err
		}
	}
	if q.DueTo != "" {
		if filter.DueTo, err = core.ParseDateField("due_to", q.DueTo, loc); err != nil {
			return maintenance.QueryFilter{}, err
		}
	}
	return filter, nil
}
