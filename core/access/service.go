package access

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core"
)

var (
	// errors
	ErrAdminNotFound = core.NewNotFoundError("admin not found")
	ErrGuardNotFound = core.NewNotFoundError("security guard not found")
	ErrNotAuthorized = core.NewAuthorizationError("email is not a known admin or security guard")
	ErrForbidden     = core.NewAuthorizationError("not authorized to perform this action")
	ErrOutOfScope    = core.NewAuthorizationError("not authorized for this society")
	ErrAccountExists = errors.New("an account with this email already exists")
)

type (
	Repository interface {
		CreateAdmin(ctx context.Context, adm Admin) (Admin, error)
		GetAdminByEmail(ctx context.Context, email string) (Admin, error)
		CreateGuard(ctx context.Context, guard SecurityGuard) (SecurityGuard, error)
		GetGuardByEmail(ctx context.Context, email string) (SecurityGuard, error)
	}

	// SocietyLister lists the names of the societies managed by an admin.
	SocietyLister interface {
		SocietyNamesByAdmin(ctx context.Context, adminEmail string) ([]string, error)
	}

	// Service resolves who is calling and what they may see.
	Service interface {
		CreateAdmin(ctx context.Context, na NewAdmin) (Admin, error)
		CreateGuard(ctx context.Context, ng NewGuard) (SecurityGuard, error)
		Resolve(ctx context.Context, email string) (Principal, error)
		ScopeFilter(ctx context.Context, email string) (Scope, error)
		ScopeOf(ctx context.Context, p Principal) (Scope, error)
		Authorize(ctx context.Context, email string, c Capability, societyName string) (Principal, error)
	}

	service struct {
		repo      Repository
		societies SocietyLister
		validate  *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, societies SocietyLister, validate *validator.Validate) Service {
	return &service{repo: repo, societies: societies, validate: validate}
}

func (svc *service) checkUniqueness(ctx context.Context, email string) error {
	_, aErr := svc.repo.GetAdminByEmail(ctx, email)
	if aErr == nil {
		return core.NewValidationError(ErrAccountExists, core.FieldError{Field: "email", Error: ErrAccountExists.Error()})
	} else if !core.IsNotFound(aErr) {
		return errors.Wrap(aErr, "checking admin email")
	}
	_, gErr := svc.repo.GetGuardByEmail(ctx, email)
	if gErr == nil {
		return core.NewValidationError(ErrAccountExists, core.FieldError{Field: "email", Error: ErrAccountExists.Error()})
	} else if !core.IsNotFound(gErr) {
		return errors.Wrap(gErr, "checking guard email")
	}
	return nil
}

func (svc *service) CreateAdmin(ctx context.Context, na NewAdmin) (Admin, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Admin{}, err
	}
	if err := svc.checkUniqueness(ctx, na.Email); err != nil {
		return Admin{}, err
	}
	hash, err := hashPassword(na.Password)
	if err != nil {
		return Admin{}, errors.Wrap(err, "hashing password")
	}
	adm := Admin{
		Name:         na.Name,
		Email:        na.Email,
		Phone:        na.Phone,
		Role:         na.Role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	return svc.repo.CreateAdmin(ctx, adm)
}

func (svc *service) CreateGuard(ctx context.Context, ng NewGuard) (SecurityGuard, error) {
	if err := ng.Validate(svc.validate); err != nil {
		return SecurityGuard{}, err
	}
	if err := svc.checkUniqueness(ctx, ng.Email); err != nil {
		return SecurityGuard{}, err
	}
	hash, err := hashPassword(ng.Password)
	if err != nil {
		return SecurityGuard{}, errors.Wrap(err, "hashing password")
	}
	guard := SecurityGuard{
		Email:        ng.Email,
		SocietyID:    ng.SocietyID,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	return svc.repo.CreateGuard(ctx, guard)
}

// Resolve looks the email up as an admin first, then as a security guard.
func (svc *service) Resolve(ctx context.Context, email string) (Principal, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return Principal{}, core.NewValidationError(nil, core.FieldError{Field: "email", Error: "admin email is required"})
	}

	adm, err := svc.repo.GetAdminByEmail(ctx, email)
	if err == nil {
		return adm.Principal(), nil
	} else if !core.IsNotFound(err) {
		return Principal{}, errors.Wrap(err, "finding admin by email")
	}

	guard, err := svc.repo.GetGuardByEmail(ctx, email)
	if err == nil {
		return guard.Principal(), nil
	} else if !core.IsNotFound(err) {
		return Principal{}, errors.Wrap(err, "finding guard by email")
	}
	return Principal{}, ErrNotAuthorized
}

func (svc *service) ScopeFilter(ctx context.Context, email string) (Scope, error) {
	p, err := svc.Resolve(ctx, email)
	if err != nil {
		return Scope{}, err
	}
	return svc.ScopeOf(ctx, p)
}

// ScopeOf returns the societies visible to p:
// superadmins and security guards see everything, admins see the societies they manage.
func (svc *service) ScopeOf(ctx context.Context, p Principal) (Scope, error) {
	if p.Can(CapViewAllSocieties) {
		return AllSocieties, nil
	}
	if p.Role != RoleAdmin {
		return Scope{}, ErrNotAuthorized
	}
	names, err := svc.societies.SocietyNamesByAdmin(ctx, p.Email)
	if err != nil {
		return Scope{}, errors.Wrap(err, "listing admin societies")
	}
	return SocietiesScope(names...), nil
}

// Authorize checks that email holds capability c and, when societyName is set, that the society is in scope.
func (svc *service) Authorize(ctx context.Context, email string, c Capability, societyName string) (Principal, error) {
	p, err := svc.Resolve(ctx, email)
	if err != nil {
		return Principal{}, err
	}
	if !p.Can(c) {
		return Principal{}, ErrForbidden
	}
	if societyName == "" {
		return p, nil
	}
	scope, err := svc.ScopeOf(ctx, p)
	if err != nil {
		return Principal{}, err
	}
	if !scope.Allows(societyName) {
		return Principal{}, ErrOutOfScope
	}
	return p, nil
}
