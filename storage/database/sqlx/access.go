package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core/access"
)

type adminRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Phone        string    `db:"phone"`
	Role         string    `db:"role"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r adminRow) admin() access.Admin {
	return access.Admin{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Role:         access.Role(r.Role),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type guardRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	SocietyID    string    `db:"society_id"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r guardRow) guard() access.SecurityGuard {
	return access.SecurityGuard{
		ID:           r.ID,
		Email:        r.Email,
		SocietyID:    r.SocietyID,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type accessRepository struct {
	db sqlx.ExtContext
}

var _ access.Repository = (*accessRepository)(nil)

func NewAccessRepository(db sqlx.ExtContext) access.Repository {
	return &accessRepository{db: db}
}

func (repo *accessRepository) CreateAdmin(ctx context.Context, adm access.Admin) (access.Admin, error) {
	adm.ID = uuid.New().String()
	q, args, err := psql.Insert("admins").
		Columns("id", "name", "email", "phone", "role", "password_hash", "created_at").
		Values(adm.ID, adm.Name, adm.Email, adm.Phone, string(adm.Role), adm.PasswordHash, adm.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return access.Admin{}, errors.Wrap(err, "building admin insert")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return access.Admin{}, access.ErrAccountExists
		}
		return access.Admin{}, errors.Wrap(err, "inserting admin")
	}
	return adm, nil
}

func (repo *accessRepository) GetAdminByEmail(ctx context.Context, email string) (access.Admin, error) {
	q, args, err := psql.Select("*").From("admins").Where("email = ?", email).ToSql()
	if err != nil {
		return access.Admin{}, errors.Wrap(err, "building admin query")
	}
	var row adminRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		return access.Admin{}, trapNoRowsErr(err, access.ErrAdminNotFound, "finding admin by email")
	}
	return row.admin(), nil
}

func (repo *accessRepository) CreateGuard(ctx context.Context, guard access.SecurityGuard) (access.SecurityGuard, error) {
	guard.ID = uuid.New().String()
	q, args, err := psql.Insert("security_guards").
		Columns("id", "email", "society_id", "password_hash", "created_at").
		Values(guard.ID, guard.Email, guard.SocietyID, guard.PasswordHash, guard.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return access.SecurityGuard{}, errors.Wrap(err, "building guard insert")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return access.SecurityGuard{}, access.ErrAccountExists
		}
		return access.SecurityGuard{}, errors.Wrap(err, "inserting guard")
	}
	return guard, nil
}

func (repo *accessRepository) GetGuardByEmail(ctx context.Context, email string) (access.SecurityGuard, error) {
	q, args, err := psql.Select("*").From("security_guards").Where("email = ?", email).ToSql()
	if err != nil {
		return access.SecurityGuard{}, errors.Wrap(err, "building guard query")
	}
	var row guardRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		return access.SecurityGuard{}, trapNoRowsErr(err, access.ErrGuardNotFound, "finding guard by email")
	}
	return row.guard(), nil
}
