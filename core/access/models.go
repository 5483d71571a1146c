package access

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/entrykart/core"
)

// Role is the kind of account a Principal acts as.
type Role string

// Roles
const (
	RoleAdmin         Role = "admin"
	RoleSuperAdmin    Role = "superadmin"
	RoleSecurityGuard Role = "security"
)

// Capability is a permission granted by a Role.
type Capability int

// Capabilities
const (
	// CapViewAllSocieties lifts the society scope on read queries.
	CapViewAllSocieties Capability = iota + 1
	// CapEditMaintenance allows administrative corrections of maintenance records.
	CapEditMaintenance
	// CapManageSocieties allows registering societies and flat owners.
	CapManageSocieties
)

var (
	AdminRoles = []Role{RoleAdmin, RoleSuperAdmin}

	// Security guards see every society since they can be stationed at any of them.
	// They are read-only.
	roleCapabilities = map[Role][]Capability{
		RoleSuperAdmin:    {CapViewAllSocieties, CapEditMaintenance, CapManageSocieties},
		RoleAdmin:         {CapEditMaintenance, CapManageSocieties},
		RoleSecurityGuard: {CapViewAllSocieties},
	}
)

func (r Role) Can(c Capability) bool {
	for _, capability := range roleCapabilities[r] {
		if capability == c {
			return true
		}
	}
	return false
}

// Principal is the resolved identity behind an email.
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (p Principal) Can(c Capability) bool {
	return p.Role.Can(c)
}

type Admin struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

func (a Admin) Principal() Principal {
	return Principal{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role}
}

type SecurityGuard struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	SocietyID    string    `json:"society_id"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

func (g SecurityGuard) Principal() Principal {
	return Principal{ID: g.ID, Email: g.Email, Role: RoleSecurityGuard}
}

func hashPassword(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
}

// NewAdmin contains information needed to create a new Admin.
type NewAdmin struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Role     Role   `json:"role" validate:"required,adminrole"`
	Password string `json:"password" validate:"required"`
}

func (na *NewAdmin) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Phone = core.CleanString(na.Phone)
	na.Role = Role(core.CleanString(string(na.Role), true /* lower */))
	return validate.Struct(na)
}

// NewGuard contains information needed to create a new SecurityGuard.
type NewGuard struct {
	Email     string `json:"email" validate:"required,email"`
	SocietyID string `json:"society_id" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

func (ng *NewGuard) Validate(validate *validator.Validate) error {
	ng.Email = core.CleanString(ng.Email, true /* lower */)
	ng.SocietyID = core.CleanString(ng.SocietyID)
	return validate.Struct(ng)
}

// Scope restricts queries to a set of societies, unless All is set.
type Scope struct {
	All       bool
	Societies []string // normalized names
}

// AllSocieties is the unrestricted Scope.
var AllSocieties = Scope{All: true}

// SocietiesScope restricts to `names`. An empty list matches nothing.
func SocietiesScope(names ...string) Scope {
	s := Scope{Societies: make([]string, 0, len(names))}
	for _, n := range names {
		s.Societies = append(s.Societies, NormalizeSociety(n))
	}
	return s
}

// Allows reports whether records of the society `name` are visible in the Scope.
func (s Scope) Allows(name string) bool {
	if s.All {
		return true
	}
	name = NormalizeSociety(name)
	for _, soc := range s.Societies {
		if soc == name {
			return true
		}
	}
	return false
}

// NormalizeSociety is the form society names are compared in.
func NormalizeSociety(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
