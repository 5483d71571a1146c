package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
)

const recordColumns = "id, owner_id, society_name, flat_number, base_amount, amount, due_date, period, " +
	"payment_date, status, penalty, admin_email, created_at, updated_at"

type recordRow struct {
	ID          string          `db:"id"`
	OwnerID     string          `db:"owner_id"`
	SocietyName string          `db:"society_name"`
	FlatNumber  string          `db:"flat_number"`
	BaseAmount  decimal.Decimal `db:"base_amount"`
	Amount      decimal.Decimal `db:"amount"`
	DueDate     time.Time       `db:"due_date"`
	Period      string          `db:"period"`
	PaymentDate null.Time       `db:"payment_date"`
	Status      string          `db:"status"`
	Penalty     decimal.Decimal `db:"penalty"`
	AdminEmail  string          `db:"admin_email"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r recordRow) record() maintenance.Record {
	return maintenance.Record{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		SocietyName: r.SocietyName,
		FlatNumber:  r.FlatNumber,
		BaseAmount:  r.BaseAmount,
		Amount:      r.Amount,
		DueDate:     r.DueDate,
		Period:      strings.TrimSpace(r.Period),
		PaymentDate: r.PaymentDate.Ptr(),
		Status:      maintenance.Status(r.Status),
		Penalty:     r.Penalty,
		AdminEmail:  r.AdminEmail,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type maintenanceRepository struct {
	db sqlx.ExtContext
}

var _ maintenance.Repository = (*maintenanceRepository)(nil)

func NewMaintenanceRepository(db sqlx.ExtContext) maintenance.Repository {
	return &maintenanceRepository{db: db}
}

func (repo *maintenanceRepository) get(ctx context.Context, where sq.Sqlizer) (maintenance.Record, error) {
	q, args, err := psql.Select(recordColumns).From("maintenance_records").Where(where).ToSql()
	if err != nil {
		return maintenance.Record{}, errors.Wrap(err, "building record query")
	}
	var row recordRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		return maintenance.Record{}, trapNoRowsErr(err, maintenance.ErrNotFound, "finding record")
	}
	return row.record(), nil
}

// FindOrCreateRecord relies on the (owner_id, period) unique constraint:
// the insert is a no-op when a concurrent request already created the record.
func (repo *maintenanceRepository) FindOrCreateRecord(ctx context.Context, rec maintenance.Record) (maintenance.Record, bool, error) {
	rec.ID = uuid.New().String()
	q, args, err := psql.Insert("maintenance_records").
		Columns("id", "owner_id", "society_name", "flat_number", "base_amount", "amount", "due_date", "period",
			"payment_date", "status", "penalty", "admin_email", "created_at", "updated_at").
		Values(rec.ID, rec.OwnerID, rec.SocietyName, rec.FlatNumber, rec.BaseAmount, rec.Amount, rec.DueDate, rec.Period,
			null.TimeFromPtr(rec.PaymentDate), string(rec.Status), rec.Penalty, rec.AdminEmail, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()).
		Suffix("ON CONFLICT (owner_id, period) DO NOTHING RETURNING " + recordColumns).
		ToSql()
	if err != nil {
		return maintenance.Record{}, false, errors.Wrap(err, "building record insert")
	}

	var row recordRow
	err = sqlx.GetContext(ctx, repo.db, &row, q, args...)
	if err == nil {
		return row.record(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return maintenance.Record{}, false, errors.Wrap(err, "inserting record")
	}

	existing, err := repo.get(ctx, sq.Eq{"owner_id": rec.OwnerID, "period": rec.Period})
	if err != nil {
		return maintenance.Record{}, false, err
	}
	return existing, false, nil
}

func (repo *maintenanceRepository) GetRecord(ctx context.Context, id string) (maintenance.Record, error) {
	if !validID(id) {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	return repo.get(ctx, sq.Eq{"id": id})
}

func filterExpr(scope access.Scope, filter maintenance.QueryFilter) sq.And {
	where := sq.And{scopeExpr("society_name", scope)}
	if filter.OwnerID != "" {
		where = append(where, sq.Eq{"owner_id": filter.OwnerID})
	}
	if filter.Society != "" {
		where = append(where, sq.Expr("lower(trim(society_name)) = ?", access.NormalizeSociety(filter.Society)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		where = append(where, sq.Expr("status = ANY(?)", pq.Array(statuses)))
	}
	if !filter.DueFrom.IsZero() {
		where = append(where, sq.GtOrEq{"due_date": filter.DueFrom})
	}
	if !filter.DueTo.IsZero() {
		where = append(where, sq.LtOrEq{"due_date": filter.DueTo})
	}
	return where
}

func (repo *maintenanceRepository) QueryRecords(ctx context.Context, scope access.Scope, filter maintenance.QueryFilter, ordering ...core.DBOrdering) ([]maintenance.Record, error) {
	qb := psql.Select(recordColumns).From("maintenance_records").Where(filterExpr(scope, filter))
	for _, ord := range core.AllowedOrderings(ordering, maintenance.OrderingFields) {
		qb = qb.OrderBy(ord.String())
	}
	qb = qb.OrderBy("id")

	q, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building records query")
	}
	var rows []recordRow
	if err = sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	recs := make([]maintenance.Record, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.record())
	}
	return recs, nil
}

func (repo *maintenanceRepository) CountRecords(ctx context.Context, scope access.Scope, filter maintenance.QueryFilter) (int, error) {
	q, args, err := psql.Select("COUNT(*)").From("maintenance_records").Where(filterExpr(scope, filter)).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building records count")
	}
	var count int
	if err = sqlx.GetContext(ctx, repo.db, &count, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting records")
	}
	return count, nil
}

// updateUnpaid applies set to an unpaid record; a missing row is reported as ErrAlreadyPaid or ErrNotFound.
func (repo *maintenanceRepository) updateUnpaid(ctx context.Context, id string, set map[string]interface{}) (maintenance.Record, error) {
	if !validID(id) {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	q, args, err := psql.Update("maintenance_records").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": string(maintenance.StatusPaid)}).
		Suffix("RETURNING " + recordColumns).
		ToSql()
	if err != nil {
		return maintenance.Record{}, errors.Wrap(err, "building record update")
	}

	var row recordRow
	err = sqlx.GetContext(ctx, repo.db, &row, q, args...)
	if err == nil {
		return row.record(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return maintenance.Record{}, errors.Wrap(err, "updating record")
	}
	if _, err = repo.GetRecord(ctx, id); err != nil {
		return maintenance.Record{}, err
	}
	return maintenance.Record{}, maintenance.ErrAlreadyPaid
}

func (repo *maintenanceRepository) UpdatePenalty(ctx context.Context, id string, status maintenance.Status, penalty decimal.Decimal, updatedAt time.Time) (maintenance.Record, error) {
	return repo.updateUnpaid(ctx, id, map[string]interface{}{
		"status":     string(status),
		"penalty":    penalty,
		"updated_at": updatedAt.UTC(),
	})
}

func (repo *maintenanceRepository) MarkPaid(ctx context.Context, id string, paymentDate time.Time, amount, penalty decimal.Decimal, updatedAt time.Time) (maintenance.Record, error) {
	return repo.updateUnpaid(ctx, id, map[string]interface{}{
		"status":       string(maintenance.StatusPaid),
		"payment_date": paymentDate,
		"amount":       amount,
		"penalty":      penalty,
		"updated_at":   updatedAt.UTC(),
	})
}

func (repo *maintenanceRepository) UpdateRecord(ctx context.Context, rec maintenance.Record) (maintenance.Record, error) {
	if !validID(rec.ID) {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	q, args, err := psql.Update("maintenance_records").
		SetMap(map[string]interface{}{
			"amount":       rec.Amount,
			"penalty":      rec.Penalty,
			"status":       string(rec.Status),
			"payment_date": null.TimeFromPtr(rec.PaymentDate),
			"due_date":     rec.DueDate,
			"period":       rec.Period,
			"updated_at":   rec.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": rec.ID}).
		Suffix("RETURNING " + recordColumns).
		ToSql()
	if err != nil {
		return maintenance.Record{}, errors.Wrap(err, "building record update")
	}

	var row recordRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		if isUniqueViolation(err) {
			return maintenance.Record{}, maintenance.ErrPeriodTaken
		}
		return maintenance.Record{}, trapNoRowsErr(err, maintenance.ErrNotFound, "updating record")
	}
	return row.record(), nil
}
