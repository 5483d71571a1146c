package maintenance

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/entrykart/core"
)

func init() {
	// amounts are numbers on the wire
	decimal.MarshalJSONWithoutQuotes = true
}

type Status string

// Statuses
const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusOverdue Status = "Overdue"
)

var AllStatuses = []Status{StatusPending, StatusPaid, StatusOverdue}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Period is a billing month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the billing month `t` falls in, in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Next returns the following month, rolling December over to January.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Contains reports whether `t` falls in the month, in t's location.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

// Day returns midnight of `day` in the month.
func (p Period) Day(day int, loc *time.Location) time.Time {
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, loc)
}

// Record is the maintenance bill of one owner for one month.
type Record struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	SocietyName string          `json:"society_name"`
	FlatNumber  string          `json:"flat_number"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Amount      decimal.Decimal `json:"amount"` // base amount + penalty once paid
	DueDate     time.Time       `json:"due_date"`
	Period      string          `json:"period"` // YYYY-MM of DueDate
	PaymentDate *time.Time      `json:"payment_date"`
	Status      Status          `json:"status"`
	Penalty     decimal.Decimal `json:"penalty"`
	AdminEmail  string          `json:"admin_email"`
	CreatedAt   time.Time       `json:"created_at"` // UTC
	UpdatedAt   time.Time       `json:"updated_at"` // UTC
}

func (r Record) IsPaid() bool {
	return r.Status == StatusPaid
}

// Due returns the amount owed: base amount plus accrued penalty.
func (r Record) Due() decimal.Decimal {
	return r.BaseAmount.Add(r.Penalty)
}

// Statement is what an owner sees for the current month.
type Statement struct {
	OwnerName   string `json:"owner_name"`
	SocietyName string `json:"society_name"`
	FlatNumber  string `json:"flat_number"`
	Email       string `json:"email"`
	Maintenance Record `json:"maintenance"`
}

type PendingSummary struct {
	PendingPayments []Record        `json:"pending_payments"`
	TotalPending    decimal.Decimal `json:"total_pending"`
	Count           int             `json:"count"`
}

// NewPayment is an owner's payment submission for the current month.
type NewPayment struct {
	Email       string `json:"email" validate:"required,email"`
	PaymentDate string `json:"payment_date" validate:"required,date"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.PaymentDate = core.CleanString(np.PaymentDate)
	return validate.Struct(np)
}

// UpdateRecord is an administrative correction. Nil fields are left untouched.
type UpdateRecord struct {
	Amount      *decimal.Decimal `json:"amount"`
	Penalty     *decimal.Decimal `json:"penalty"`
	Status      *string          `json:"status" validate:"omitempty,mstatus"`
	PaymentDate *string          `json:"payment_date" validate:"omitempty,date"`
	DueDate     *string          `json:"due_date" validate:"omitempty,date"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	if err := validate.Struct(ur); err != nil {
		return err
	}
	var flds []core.FieldError
	if ur.Amount != nil && ur.Amount.IsNegative() {
		flds = append(flds, core.FieldError{Field: "amount", Error: "amount cannot be negative"})
	}
	if ur.Penalty != nil && ur.Penalty.IsNegative() {
		flds = append(flds, core.FieldError{Field: "penalty", Error: "penalty cannot be negative"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// QueryFilter narrows record queries. Zero fields are ignored.
type QueryFilter struct {
	OwnerID  string
	Statuses []Status
	Society  string
	DueFrom  time.Time
	DueTo    time.Time
}

// ordering fields (json name -> column name)
var OrderingFields = map[string]string{
	"due_date":     "due_date",
	"period":       "period",
	"status":       "status",
	"society_name": "society_name",
	"flat_number":  "flat_number",
	"amount":       "amount",
	"penalty":      "penalty",
	"created_at":   "created_at",
}

var defaultOrdering = []core.DBOrdering{{Field: "due_date"}}
