package sqlxrepos

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core/access"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// trapNoRowsAffected maps a write that matched nothing to notFound
func trapNoRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// scopeExpr restricts a query to the societies of scope, compared normalized.
func scopeExpr(column string, scope access.Scope) sq.Sqlizer {
	if scope.All {
		return sq.Expr("TRUE")
	}
	return sq.Expr("lower(trim("+column+")) = ANY(?)", pq.Array(scope.Societies))
}
