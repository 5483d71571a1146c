package society

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
)

var (
	// errors
	ErrSocietyNotFound = core.NewNotFoundError("society not found")
	ErrOwnerNotFound   = core.NewNotFoundError("owner not found")
	ErrSocietyExists   = errors.New("a society with this name already exists")
	ErrOwnerExists     = errors.New("an owner with this email already exists")
	ErrUnknownSociety  = errors.New("society does not exist")
	ErrUnknownFlat     = errors.New("flat does not exist in this society")
	ErrFlatOccupied    = errors.New("an owner lives in a flat beyond this number")
)

type (
	Repository interface {
		CreateSociety(ctx context.Context, soc Society) (Society, error)
		GetSocietyByID(ctx context.Context, id string) (Society, error)
		// GetSocietyByName matches names case-insensitively, ignoring surrounding whitespace.
		GetSocietyByName(ctx context.Context, name string) (Society, error)
		QuerySocieties(ctx context.Context, scope access.Scope) ([]Society, error)
		CountSocieties(ctx context.Context, scope access.Scope) (int, error)
		SocietyNamesByAdmin(ctx context.Context, adminEmail string) ([]string, error)
		// UpdateSociety overwrites the location, flats and admin of soc. Its owners follow the new admin.
		UpdateSociety(ctx context.Context, soc Society) (Society, error)
		// DeleteSociety removes a society along with its owners and their maintenance records.
		DeleteSociety(ctx context.Context, id string) error
		CreateOwner(ctx context.Context, owner FlatOwner) (FlatOwner, error)
		GetOwnerByID(ctx context.Context, id string) (FlatOwner, error)
		GetOwnerByEmail(ctx context.Context, email string) (FlatOwner, error)
		QueryOwners(ctx context.Context, scope access.Scope) ([]FlatOwner, error)
		// UpdateOwner overwrites the flat, name, profession and contact of owner.
		UpdateOwner(ctx context.Context, owner FlatOwner) (FlatOwner, error)
		// DeleteOwner removes an owner along with their maintenance records.
		DeleteOwner(ctx context.Context, id string) error
	}

	Service interface {
		CreateSociety(ctx context.Context, p access.Principal, ns NewSociety) (Society, error)
		GetSociety(ctx context.Context, name string) (Society, error)
		QuerySocieties(ctx context.Context, scope access.Scope) ([]Society, error)
		CountSocieties(ctx context.Context, scope access.Scope) (int, error)
		UpdateSociety(ctx context.Context, p access.Principal, scope access.Scope, id string, us UpdateSociety) (Society, error)
		DeleteSociety(ctx context.Context, p access.Principal, scope access.Scope, id string) error
		CreateOwner(ctx context.Context, no NewOwner) (FlatOwner, error)
		GetOwnerByEmail(ctx context.Context, email string) (FlatOwner, error)
		QueryOwners(ctx context.Context, scope access.Scope) ([]FlatOwner, error)
		UpdateOwner(ctx context.Context, p access.Principal, scope access.Scope, id string, uo UpdateOwner) (FlatOwner, error)
		DeleteOwner(ctx context.Context, p access.Principal, scope access.Scope, id string) error
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{repo: repo, validate: validate}
}

// CreateSociety registers a new society.
// Scoped admins always own the societies they create.
func (svc *service) CreateSociety(ctx context.Context, p access.Principal, ns NewSociety) (Society, error) {
	if !p.Can(access.CapManageSocieties) {
		return Society{}, access.ErrForbidden
	}
	if !p.Can(access.CapViewAllSocieties) || ns.AdminEmail == "" {
		ns.AdminEmail = p.Email
	}
	if err := ns.Validate(svc.validate); err != nil {
		return Society{}, err
	}

	if _, err := svc.repo.GetSocietyByName(ctx, ns.Name); err == nil {
		return Society{}, core.NewValidationError(ErrSocietyExists, core.FieldError{Field: "name", Error: ErrSocietyExists.Error()})
	} else if !core.IsNotFound(err) {
		return Society{}, errors.Wrap(err, "checking society name")
	}

	soc := Society{
		Name:       ns.Name,
		Location:   ns.Location,
		Flats:      numberFlats(ns.TotalFlats),
		AdminEmail: ns.AdminEmail,
		CreatedAt:  time.Now().UTC(),
	}
	return svc.repo.CreateSociety(ctx, soc)
}

func (svc *service) GetSociety(ctx context.Context, name string) (Society, error) {
	return svc.repo.GetSocietyByName(ctx, core.CleanString(name))
}

func (svc *service) QuerySocieties(ctx context.Context, scope access.Scope) ([]Society, error) {
	return svc.repo.QuerySocieties(ctx, scope)
}

func (svc *service) CountSocieties(ctx context.Context, scope access.Scope) (int, error) {
	return svc.repo.CountSocieties(ctx, scope)
}

// authorize checks that p may manage the society `name`.
func authorize(p access.Principal, scope access.Scope, name string) error {
	if !p.Can(access.CapManageSocieties) {
		return access.ErrForbidden
	}
	if !scope.Allows(name) {
		return access.ErrOutOfScope
	}
	return nil
}

// UpdateSociety corrects a society. Only principals seeing every society may hand it to another admin.
func (svc *service) UpdateSociety(ctx context.Context, p access.Principal, scope access.Scope, id string, us UpdateSociety) (Society, error) {
	soc, err := svc.repo.GetSocietyByID(ctx, id)
	if err != nil {
		return Society{}, err
	}
	if err = authorize(p, scope, soc.Name); err != nil {
		return Society{}, err
	}
	if err = us.Validate(svc.validate); err != nil {
		return Society{}, err
	}

	if us.AdminEmail != nil && *us.AdminEmail != soc.AdminEmail {
		if !p.Can(access.CapViewAllSocieties) {
			return Society{}, access.ErrForbidden
		}
		soc.AdminEmail = *us.AdminEmail
	}
	if us.Location != nil {
		soc.Location = *us.Location
	}
	if us.TotalFlats != nil {
		flats := numberFlats(*us.TotalFlats)
		if err = svc.checkOccupied(ctx, soc.Name, flats); err != nil {
			return Society{}, err
		}
		soc.Flats = flats
	}
	return svc.repo.UpdateSociety(ctx, soc)
}

// checkOccupied fails if an owner of the society lives outside flats. No flats means any flat.
func (svc *service) checkOccupied(ctx context.Context, name string, flats []string) error {
	if len(flats) == 0 {
		return nil
	}
	owners, err := svc.repo.QueryOwners(ctx, access.SocietiesScope(name))
	if err != nil {
		return errors.Wrap(err, "listing society owners")
	}
	soc := Society{Flats: flats}
	for _, owner := range owners {
		if !soc.HasFlat(owner.FlatNumber) {
			return core.NewValidationError(ErrFlatOccupied, core.FieldError{Field: "total_flats", Error: ErrFlatOccupied.Error()})
		}
	}
	return nil
}

// DeleteSociety removes a society, its owners and their maintenance records.
func (svc *service) DeleteSociety(ctx context.Context, p access.Principal, scope access.Scope, id string) error {
	soc, err := svc.repo.GetSocietyByID(ctx, id)
	if err != nil {
		return err
	}
	if err = authorize(p, scope, soc.Name); err != nil {
		return err
	}
	return svc.repo.DeleteSociety(ctx, soc.ID)
}

// CreateOwner registers the owner of a flat. The owner inherits the society's admin.
func (svc *service) CreateOwner(ctx context.Context, no NewOwner) (FlatOwner, error) {
	if err := no.Validate(svc.validate); err != nil {
		return FlatOwner{}, err
	}

	soc, err := svc.repo.GetSocietyByName(ctx, no.SocietyName)
	if err != nil {
		if core.IsNotFound(err) {
			return FlatOwner{}, core.NewValidationError(ErrUnknownSociety, core.FieldError{Field: "society_name", Error: ErrUnknownSociety.Error()})
		}
		return FlatOwner{}, errors.Wrap(err, "finding society")
	}
	if len(soc.Flats) > 0 && !soc.HasFlat(no.FlatNumber) {
		return FlatOwner{}, core.NewValidationError(ErrUnknownFlat, core.FieldError{Field: "flat_number", Error: ErrUnknownFlat.Error()})
	}

	if _, err = svc.repo.GetOwnerByEmail(ctx, no.Email); err == nil {
		return FlatOwner{}, core.NewValidationError(ErrOwnerExists, core.FieldError{Field: "email", Error: ErrOwnerExists.Error()})
	} else if !core.IsNotFound(err) {
		return FlatOwner{}, errors.Wrap(err, "checking owner email")
	}

	owner := FlatOwner{
		SocietyName: soc.Name,
		FlatNumber:  no.FlatNumber,
		OwnerName:   no.OwnerName,
		Profession:  no.Profession,
		Contact:     no.Contact,
		Email:       no.Email,
		AdminEmail:  soc.AdminEmail,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateOwner(ctx, owner)
}

func (svc *service) GetOwnerByEmail(ctx context.Context, email string) (FlatOwner, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return FlatOwner{}, core.NewValidationError(nil, core.FieldError{Field: "email", Error: "owner email is required"})
	}
	return svc.repo.GetOwnerByEmail(ctx, email)
}

func (svc *service) QueryOwners(ctx context.Context, scope access.Scope) ([]FlatOwner, error) {
	return svc.repo.QueryOwners(ctx, scope)
}

func (svc *service) UpdateOwner(ctx context.Context, p access.Principal, scope access.Scope, id string, uo UpdateOwner) (FlatOwner, error) {
	owner, err := svc.repo.GetOwnerByID(ctx, id)
	if err != nil {
		return FlatOwner{}, err
	}
	if err = authorize(p, scope, owner.SocietyName); err != nil {
		return FlatOwner{}, err
	}
	if err = uo.Validate(svc.validate); err != nil {
		return FlatOwner{}, err
	}

	if uo.FlatNumber != nil {
		soc, err := svc.repo.GetSocietyByName(ctx, owner.SocietyName)
		if err != nil {
			return FlatOwner{}, errors.Wrap(err, "finding society")
		}
		if len(soc.Flats) > 0 && !soc.HasFlat(*uo.FlatNumber) {
			return FlatOwner{}, core.NewValidationError(ErrUnknownFlat, core.FieldError{Field: "flat_number", Error: ErrUnknownFlat.Error()})
		}
		owner.FlatNumber = *uo.FlatNumber
	}
	if uo.OwnerName != nil {
		owner.OwnerName = *uo.OwnerName
	}
	if uo.Profession != nil {
		owner.Profession = *uo.Profession
	}
	if uo.Contact != nil {
		owner.Contact = *uo.Contact
	}
	return svc.repo.UpdateOwner(ctx, owner)
}

// DeleteOwner removes an owner and their maintenance records.
func (svc *service) DeleteOwner(ctx context.Context, p access.Principal, scope access.Scope, id string) error {
	owner, err := svc.repo.GetOwnerByID(ctx, id)
	if err != nil {
		return err
	}
	if err = authorize(p, scope, owner.SocietyName); err != nil {
		return err
	}
	return svc.repo.DeleteOwner(ctx, owner.ID)
}
