package society

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/entrykart/core"
)

type Society struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	Flats      []string  `json:"flats"`
	AdminEmail string    `json:"admin_email"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// HasFlat reports whether flat is one of the society's flats.
func (s Society) HasFlat(flat string) bool {
	for _, f := range s.Flats {
		if f == flat {
			return true
		}
	}
	return false
}

// FlatOwner is the occupant of a flat, identified by email.
type FlatOwner struct {
	ID          string    `json:"id"`
	SocietyName string    `json:"society_name"`
	FlatNumber  string    `json:"flat_number"`
	OwnerName   string    `json:"owner_name"`
	Profession  string    `json:"profession"`
	Contact     string    `json:"contact"`
	Email       string    `json:"email"`
	AdminEmail  string    `json:"admin_email"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// NewSociety contains information needed to create a new Society.
// Flats are numbered "Flat 1" to "Flat <TotalFlats>".
type NewSociety struct {
	Name       string `json:"name" validate:"required"`
	Location   string `json:"location" validate:"required"`
	TotalFlats int    `json:"total_flats" validate:"min=0,max=10000"`
	AdminEmail string `json:"admin_email" validate:"required,email"`
}

func (ns *NewSociety) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Location = core.CleanString(ns.Location)
	ns.AdminEmail = core.CleanString(ns.AdminEmail, true /* lower */)
	return validate.Struct(ns)
}

// numberFlats names n flats "Flat 1" to "Flat <n>".
func numberFlats(n int) []string {
	flats := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		flats = append(flats, fmt.Sprintf("Flat %d", i))
	}
	return flats
}

// NewOwner contains information needed to register a FlatOwner.
type NewOwner struct {
	SocietyName string `json:"society_name" validate:"required"`
	FlatNumber  string `json:"flat_number" validate:"required,flatno"`
	OwnerName   string `json:"owner_name" validate:"required"`
	Profession  string `json:"profession"`
	Contact     string `json:"contact"`
	Email       string `json:"email" validate:"required,email"`
}

func (no *NewOwner) Validate(validate *validator.Validate) error {
	no.SocietyName = core.CleanString(no.SocietyName)
	no.FlatNumber = core.CleanString(no.FlatNumber)
	no.OwnerName = core.CleanString(no.OwnerName)
	no.Profession = core.CleanString(no.Profession)
	no.Contact = core.CleanString(no.Contact)
	no.Email = core.CleanString(no.Email, true /* lower */)
	return validate.Struct(no)
}

// UpdateSociety holds the corrections an admin may make to a Society. The name is fixed.
type UpdateSociety struct {
	Location   *string `json:"location" validate:"omitnil,required"`
	TotalFlats *int    `json:"total_flats" validate:"omitnil,min=0,max=10000"`
	AdminEmail *string `json:"admin_email" validate:"omitnil,required,email"`
}

func (us *UpdateSociety) Validate(validate *validator.Validate) error {
	cleanPtr(us.Location, false)
	cleanPtr(us.AdminEmail, true)
	return validate.Struct(us)
}

// UpdateOwner holds the corrections an admin may make to a FlatOwner.
// The email identifies the owner and cannot change.
type UpdateOwner struct {
	FlatNumber *string `json:"flat_number" validate:"omitnil,required,flatno"`
	OwnerName  *string `json:"owner_name" validate:"omitnil,required"`
	Profession *string `json:"profession"`
	Contact    *string `json:"contact"`
}

func (uo *UpdateOwner) Validate(validate *validator.Validate) error {
	cleanPtr(uo.FlatNumber, false)
	cleanPtr(uo.OwnerName, false)
	cleanPtr(uo.Profession, false)
	cleanPtr(uo.Contact, false)
	return validate.Struct(uo)
}

func cleanPtr(s *string, lower bool) {
	if s != nil {
		*s = core.CleanString(*s, lower)
	}
}
