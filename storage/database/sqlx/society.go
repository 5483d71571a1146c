package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/society"
)

type societyRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	Location   string         `db:"location"`
	Flats      pq.StringArray `db:"flats"`
	AdminEmail string         `db:"admin_email"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r societyRow) society() society.Society {
	return society.Society{
		ID:         r.ID,
		Name:       r.Name,
		Location:   r.Location,
		Flats:      []string(r.Flats),
		AdminEmail: r.AdminEmail,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type ownerRow struct {
	ID          string    `db:"id"`
	SocietyName string    `db:"society_name"`
	FlatNumber  string    `db:"flat_number"`
	OwnerName   string    `db:"owner_name"`
	Profession  string    `db:"profession"`
	Contact     string    `db:"contact"`
	Email       string    `db:"email"`
	AdminEmail  string    `db:"admin_email"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r ownerRow) owner() society.FlatOwner {
	return society.FlatOwner{
		ID:          r.ID,
		SocietyName: r.SocietyName,
		FlatNumber:  r.FlatNumber,
		OwnerName:   r.OwnerName,
		Profession:  r.Profession,
		Contact:     r.Contact,
		Email:       r.Email,
		AdminEmail:  r.AdminEmail,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type societyRepository struct {
	db sqlx.ExtContext
}

var _ society.Repository = (*societyRepository)(nil)

func NewSocietyRepository(db sqlx.ExtContext) society.Repository {
	return &societyRepository{db: db}
}

func (repo *societyRepository) CreateSociety(ctx context.Context, soc society.Society) (society.Society, error) {
	soc.ID = uuid.New().String()
	if soc.Flats == nil {
		soc.Flats = []string{}
	}
	q, args, err := psql.Insert("societies").
		Columns("id", "name", "location", "flats", "admin_email", "created_at").
		Values(soc.ID, soc.Name, soc.Location, pq.Array(soc.Flats), soc.AdminEmail, soc.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return society.Society{}, errors.Wrap(err, "building society insert")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return society.Society{}, society.ErrSocietyExists
		}
		return society.Society{}, errors.Wrap(err, "inserting society")
	}
	return soc, nil
}

func (repo *societyRepository) GetSocietyByID(ctx context.Context, id string) (society.Society, error) {
	if !validID(id) {
		return society.Society{}, society.ErrSocietyNotFound
	}
	q, args, err := psql.Select("*").From("societies").Where("id = ?", id).ToSql()
	if err != nil {
		return society.Society{}, errors.Wrap(err, "building society query")
	}
	var row societyRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		return society.Society{}, trapNoRowsErr(err, society.ErrSocietyNotFound, "finding society by id")
	}
	return row.society(), nil
}

func (repo *societyRepository) GetSocietyByName(ctx context.Context, name string) (society.Society, error) {
	q, args, err := psql.Select("*").From("societies").
		Where("lower(trim(name)) = ?", access.NormalizeSociety(name)).
		ToSql()
	if err != nil {
		return society.Society{}, errors.Wrap(err, "building society query")
	}
	var row societyRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		return society.Society{}, trapNoRowsErr(err, society.ErrSocietyNotFound, "finding society by name")
	}
	return row.society(), nil
}

func (repo *societyRepository) QuerySocieties(ctx context.Context, scope access.Scope) ([]society.Society, error) {
	q, args, err := psql.Select("*").From("societies").Where(scopeExpr("name", scope)).OrderBy("name").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building societies query")
	}
	var rows []societyRow
	if err = sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying societies")
	}
	socs := make([]society.Society, 0, len(rows))
	for _, r := range rows {
		socs = append(socs, r.society())
	}
	return socs, nil
}

func (repo *societyRepository) CountSocieties(ctx context.Context, scope access.Scope) (int, error) {
	q, args, err := psql.Select("count(*)").From("societies").Where(scopeExpr("name", scope)).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building societies count")
	}
	var count int
	if err = sqlx.GetContext(ctx, repo.db, &count, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting societies")
	}
	return count, nil
}

// owners follow the admin of their society
const updateSocietySQL = `
WITH soc AS (
    UPDATE societies SET location = $2, flats = $3, admin_email = $4
    WHERE id = $1
    RETURNING *
), owners AS (
    UPDATE flat_owners SET admin_email = $4
    WHERE lower(trim(society_name)) = (SELECT lower(trim(name)) FROM soc)
)
SELECT * FROM soc`

func (repo *societyRepository) UpdateSociety(ctx context.Context, soc society.Society) (society.Society, error) {
	if !validID(soc.ID) {
		return society.Society{}, society.ErrSocietyNotFound
	}
	if soc.Flats == nil {
		soc.Flats = []string{}
	}
	var row societyRow
	err := sqlx.GetContext(ctx, repo.db, &row, updateSocietySQL, soc.ID, soc.Location, pq.Array(soc.Flats), soc.AdminEmail)
	if err != nil {
		return society.Society{}, trapNoRowsErr(err, society.ErrSocietyNotFound, "updating society")
	}
	return row.society(), nil
}

// maintenance records go with their owners (ON DELETE CASCADE)
const deleteSocietySQL = `
WITH owners AS (
    DELETE FROM flat_owners
    WHERE lower(trim(society_name)) = (SELECT lower(trim(name)) FROM societies WHERE id = $1)
)
DELETE FROM societies WHERE id = $1`

func (repo *societyRepository) DeleteSociety(ctx context.Context, id string) error {
	if !validID(id) {
		return society.ErrSocietyNotFound
	}
	res, err := repo.db.ExecContext(ctx, deleteSocietySQL, id)
	if err != nil {
		return errors.Wrap(err, "deleting society")
	}
	return trapNoRowsAffected(res, society.ErrSocietyNotFound)
}

func (repo *societyRepository) SocietyNamesByAdmin(ctx context.Context, adminEmail string) ([]string, error) {
	q, args, err := psql.Select("name").From("societies").Where("admin_email = ?", adminEmail).OrderBy("name").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building society names query")
	}
	names := make([]string, 0)
	if err = sqlx.SelectContext(ctx, repo.db, &names, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying society names")
	}
	return names, nil
}

func (repo *societyRepository) CreateOwner(ctx context.Context, owner society.FlatOwner) (society.FlatOwner, error) {
	owner.ID = uuid.New().String()
	q, args, err := psql.Insert("flat_owners").
		Columns("id", "society_name", "flat_number", "owner_name", "profession", "contact", "email", "admin_email", "created_at").
		Values(owner.ID, owner.SocietyName, owner.FlatNumber, owner.OwnerName, owner.Profession, owner.Contact,
			owner.Email, owner.AdminEmail, owner.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return society.FlatOwner{}, errors.Wrap(err, "building owner insert")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return society.FlatOwner{}, society.ErrOwnerExists
		}
		return society.FlatOwner{}, errors.Wrap(err, "inserting owner")
	}
	return owner, nil
}

func (repo *societyRepository) getOwner(ctx context.Context, where interface{}, args ...interface{}) (society.FlatOwner, error) {
	q, qArgs, err := psql.Select("*").From("flat_owners").Where(where, args...).ToSql()
	if err != nil {
		return society.FlatOwner{}, errors.Wrap(err, "building owner query")
	}
	var row ownerRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, qArgs...); err != nil {
		return society.FlatOwner{}, trapNoRowsErr(err, society.ErrOwnerNotFound, "finding owner")
	}
	return row.owner(), nil
}

func (repo *societyRepository) GetOwnerByID(ctx context.Context, id string) (society.FlatOwner, error) {
	if !validID(id) {
		return society.FlatOwner{}, society.ErrOwnerNotFound
	}
	return repo.getOwner(ctx, "id = ?", id)
}

func (repo *societyRepository) GetOwnerByEmail(ctx context.Context, email string) (society.FlatOwner, error) {
	return repo.getOwner(ctx, "email = ?", email)
}

func (repo *societyRepository) QueryOwners(ctx context.Context, scope access.Scope) ([]society.FlatOwner, error) {
	q, args, err := psql.Select("*").From("flat_owners").
		Where(scopeExpr("society_name", scope)).
		OrderBy("society_name", "flat_number").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building owners query")
	}
	var rows []ownerRow
	if err = sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying owners")
	}
	owners := make([]society.FlatOwner, 0, len(rows))
	for _, r := range rows {
		owners = append(owners, r.owner())
	}
	return owners, nil
}

func (repo *societyRepository) UpdateOwner(ctx context.Context, owner society.FlatOwner) (society.FlatOwner, error) {
	if !validID(owner.ID) {
		return society.FlatOwner{}, society.ErrOwnerNotFound
	}
	q, args, err := psql.Update("flat_owners").
		SetMap(map[string]interface{}{
			"flat_number": owner.FlatNumber,
			"owner_name":  owner.OwnerName,
			"profession":  owner.Profession,
			"contact":     owner.Contact,
		}).
		Where("id = ?", owner.ID).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return society.FlatOwner{}, errors.Wrap(err, "building owner update")
	}
	var row ownerRow
	if err = sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		return society.FlatOwner{}, trapNoRowsErr(err, society.ErrOwnerNotFound, "updating owner")
	}
	return row.owner(), nil
}

// DeleteOwner relies on ON DELETE CASCADE for the owner's maintenance records.
func (repo *societyRepository) DeleteOwner(ctx context.Context, id string) error {
	if !validID(id) {
		return society.ErrOwnerNotFound
	}
	q, args, err := psql.Delete("flat_owners").Where("id = ?", id).ToSql()
	if err != nil {
		return errors.Wrap(err, "building owner delete")
	}
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting owner")
	}
	return trapNoRowsAffected(res, society.ErrOwnerNotFound)
}
