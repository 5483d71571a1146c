package maintenance

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/society"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("maintenance record not found")
	ErrAlreadyPaid = errors.New("maintenance for this month is already paid")
	ErrPeriodTaken = errors.New("the owner already has a record for this month")
)

type (
	Repository interface {
		// FindOrCreateRecord returns the record of rec.OwnerID for rec.Period, inserting rec if there is none,
		// and whether it was inserted. Concurrent calls for the same owner and period yield one record.
		FindOrCreateRecord(ctx context.Context, rec Record) (Record, bool, error)
		GetRecord(ctx context.Context, id string) (Record, error)
		QueryRecords(ctx context.Context, scope access.Scope, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, error)
		CountRecords(ctx context.Context, scope access.Scope, filter QueryFilter) (int, error)
		// UpdatePenalty sets status and penalty of an unpaid record; ErrAlreadyPaid if it is paid.
		UpdatePenalty(ctx context.Context, id string, status Status, penalty decimal.Decimal, updatedAt time.Time) (Record, error)
		// MarkPaid freezes the penalty and amount of an unpaid record; ErrAlreadyPaid if it is paid.
		MarkPaid(ctx context.Context, id string, paymentDate time.Time, amount, penalty decimal.Decimal, updatedAt time.Time) (Record, error)
		// UpdateRecord overwrites every mutable field; ErrPeriodTaken if the new period collides.
		UpdateRecord(ctx context.Context, rec Record) (Record, error)
	}

	OwnerFinder interface {
		GetOwnerByEmail(ctx context.Context, email string) (society.FlatOwner, error)
	}

	// Authorizer checks that an email holds a capability over a society.
	Authorizer interface {
		Authorize(ctx context.Context, email string, c access.Capability, societyName string) (access.Principal, error)
	}

	Service interface {
		EnsureCurrentPeriodRecord(ctx context.Context, ownerEmail string, asOf time.Time) (Statement, error)
		RecordPayment(ctx context.Context, np NewPayment, asOf time.Time) (Record, error)
		History(ctx context.Context, ownerEmail string) ([]Record, error)
		Pending(ctx context.Context, ownerEmail string, asOf time.Time) (PendingSummary, error)
		Query(ctx context.Context, scope access.Scope, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, error)
		Count(ctx context.Context, scope access.Scope, filter QueryFilter) (int, error)
		Get(ctx context.Context, scope access.Scope, id string) (Record, error)
		Update(ctx context.Context, adminEmail string, id string, ur UpdateRecord) (Record, error)
		Preview(base *decimal.Decimal, due, asOf time.Time) decimal.Decimal
		Now() time.Time
		Location() *time.Location
	}

	Options struct {
		BaseAmount  decimal.Decimal
		GraceDay    int
		CreationDay int
		Policy      PenaltyPolicy
		Location    *time.Location
		NowFunc     func() time.Time
	}

	service struct {
		repo     Repository
		owners   OwnerFinder
		authz    Authorizer
		validate *validator.Validate
		log      core.Logger
		opts     Options
	}
)

var _ Service = (*service)(nil)

// OptionsFromConfig builds service options from the maintenance config.
func OptionsFromConfig(conf core.MaintenanceConfig) (Options, error) {
	policy, err := NewPolicy(conf)
	if err != nil {
		return Options{}, err
	}
	return Options{
		BaseAmount:  conf.BaseAmount,
		GraceDay:    conf.GraceDay,
		CreationDay: conf.CreationDay,
		Policy:      policy,
		Location:    conf.Location,
	}, nil
}

func NewService(
	repo Repository,
	owners OwnerFinder,
	authz Authorizer,
	validate *validator.Validate,
	logger core.Logger,
	opts Options,
) Service {
	if opts.BaseAmount.IsZero() {
		opts.BaseAmount = DefaultBaseAmount
	}
	if opts.GraceDay == 0 {
		opts.GraceDay = DefaultGraceDay
	}
	if opts.CreationDay == 0 {
		opts.CreationDay = DefaultCreationDay
	}
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NowFunc == nil {
		opts.NowFunc = time.Now
	}
	return &service{repo: repo, owners: owners, authz: authz, validate: validate, log: logger, opts: opts}
}

func (svc *service) Now() time.Time {
	return svc.opts.NowFunc().In(svc.opts.Location)
}

func (svc *service) Location() *time.Location {
	return svc.opts.Location
}

// asOf defaults to now and is expressed in the billing location.
func (svc *service) asOf(t time.Time) time.Time {
	if t.IsZero() {
		return svc.Now()
	}
	return t.In(svc.opts.Location)
}

func (svc *service) newRecord(owner society.FlatOwner, period Period) Record {
	now := svc.opts.NowFunc().UTC()
	return Record{
		OwnerID:     owner.ID,
		SocietyName: owner.SocietyName,
		FlatNumber:  owner.FlatNumber,
		BaseAmount:  svc.opts.BaseAmount,
		Amount:      svc.opts.BaseAmount,
		DueDate:     period.Day(svc.opts.GraceDay, svc.opts.Location),
		Period:      period.String(),
		Status:      StatusPending,
		Penalty:     decimal.Zero,
		AdminEmail:  owner.AdminEmail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (svc *service) ensure(ctx context.Context, owner society.FlatOwner, period Period) (Record, error) {
	rec, created, err := svc.repo.FindOrCreateRecord(ctx, svc.newRecord(owner, period))
	if err != nil {
		return Record{}, errors.Wrapf(err, "ensuring %s record of owner %s", period, owner.ID)
	}
	if created {
		svc.log.Info("maintenance record created", "owner", owner.Email, "period", period.String(), "record", rec.ID)
	}
	return rec, nil
}

// isPastDue reports whether a bill due at `due` is late at `asOf`:
// after the due day, or after the grace day of the due month.
func (svc *service) isPastDue(due, asOf time.Time) bool {
	due = due.In(svc.opts.Location)
	endOfDueDay := time.Date(due.Year(), due.Month(), due.Day()+1, 0, 0, 0, 0, svc.opts.Location)
	if !asOf.Before(endOfDueDay) {
		return true
	}
	return PeriodOf(due).Contains(asOf) && asOf.Day() > svc.opts.GraceDay
}

// refresh marks an unpaid past-due record Overdue with an up to date penalty.
func (svc *service) refresh(ctx context.Context, rec Record, asOf time.Time) (Record, error) {
	if rec.IsPaid() || !svc.isPastDue(rec.DueDate, asOf) {
		return rec, nil
	}
	penalty := svc.opts.Policy.Penalty(rec.BaseAmount, rec.DueDate.In(svc.opts.Location), asOf)
	if rec.Status == StatusOverdue && penalty.Equal(rec.Penalty) {
		return rec, nil
	}
	updated, err := svc.repo.UpdatePenalty(ctx, rec.ID, StatusOverdue, penalty, svc.opts.NowFunc().UTC())
	if errors.Is(err, ErrAlreadyPaid) {
		// paid concurrently
		return svc.repo.GetRecord(ctx, rec.ID)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "updating penalty")
	}
	return updated, nil
}

// provisionNext ensures the next month's record exists once the current one is paid and the creation day is reached.
func (svc *service) provisionNext(ctx context.Context, owner society.FlatOwner, current Record, asOf time.Time) error {
	if !current.IsPaid() || asOf.Day() < svc.opts.CreationDay {
		return nil
	}
	_, err := svc.ensure(ctx, owner, PeriodOf(asOf).Next())
	return err
}

// EnsureCurrentPeriodRecord returns the owner's record for the month of asOf, creating it if needed,
// with its status and penalty brought up to date.
func (svc *service) EnsureCurrentPeriodRecord(ctx context.Context, ownerEmail string, asOf time.Time) (Statement, error) {
	owner, err := svc.owners.GetOwnerByEmail(ctx, ownerEmail)
	if err != nil {
		return Statement{}, err
	}
	asOf = svc.asOf(asOf)

	rec, err := svc.ensure(ctx, owner, PeriodOf(asOf))
	if err != nil {
		return Statement{}, err
	}
	if rec, err = svc.refresh(ctx, rec, asOf); err != nil {
		return Statement{}, err
	}
	if err = svc.provisionNext(ctx, owner, rec, asOf); err != nil {
		return Statement{}, err
	}

	return Statement{
		OwnerName:   owner.OwnerName,
		SocietyName: owner.SocietyName,
		FlatNumber:  owner.FlatNumber,
		Email:       owner.Email,
		Maintenance: rec,
	}, nil
}

// RecordPayment pays the owner's bill for the month of asOf, freezing its penalty.
func (svc *service) RecordPayment(ctx context.Context, np NewPayment, asOf time.Time) (Record, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Record{}, err
	}
	paymentDate, err := core.ParseDateField("payment_date", np.PaymentDate, svc.opts.Location)
	if err != nil {
		return Record{}, err
	}
	owner, err := svc.owners.GetOwnerByEmail(ctx, np.Email)
	if err != nil {
		return Record{}, err
	}
	asOf = svc.asOf(asOf)

	rec, err := svc.ensure(ctx, owner, PeriodOf(asOf))
	if err != nil {
		return Record{}, err
	}
	alreadyPaid := core.NewValidationError(ErrAlreadyPaid, core.FieldError{Field: "payment_date", Error: ErrAlreadyPaid.Error()})
	if rec.IsPaid() {
		return Record{}, alreadyPaid
	}

	penalty := rec.Penalty
	if svc.isPastDue(rec.DueDate, asOf) {
		penalty = svc.opts.Policy.Penalty(rec.BaseAmount, rec.DueDate.In(svc.opts.Location), asOf)
	}
	rec, err = svc.repo.MarkPaid(ctx, rec.ID, paymentDate, rec.BaseAmount.Add(penalty), penalty, svc.opts.NowFunc().UTC())
	if errors.Is(err, ErrAlreadyPaid) {
		return Record{}, alreadyPaid
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "marking record paid")
	}
	svc.log.Info("maintenance paid", "owner", owner.Email, "period", rec.Period, "amount", rec.Amount.String())

	if err = svc.provisionNext(ctx, owner, rec, asOf); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// History lists all the owner's records, latest due date first.
func (svc *service) History(ctx context.Context, ownerEmail string) ([]Record, error) {
	owner, err := svc.owners.GetOwnerByEmail(ctx, ownerEmail)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryRecords(ctx, access.AllSocieties, QueryFilter{OwnerID: owner.ID}, defaultOrdering...)
}

// Pending lists the owner's unpaid records, oldest first, with their status and penalty brought up to date, and their total.
func (svc *service) Pending(ctx context.Context, ownerEmail string, asOf time.Time) (PendingSummary, error) {
	owner, err := svc.owners.GetOwnerByEmail(ctx, ownerEmail)
	if err != nil {
		return PendingSummary{}, err
	}
	asOf = svc.asOf(asOf)

	filter := QueryFilter{OwnerID: owner.ID, Statuses: []Status{StatusPending, StatusOverdue}}
	recs, err := svc.repo.QueryRecords(ctx, access.AllSocieties, filter, core.DBOrdering{Field: "due_date", Ascending: true})
	if err != nil {
		return PendingSummary{}, err
	}

	summary := PendingSummary{PendingPayments: make([]Record, 0, len(recs)), TotalPending: decimal.Zero}
	for _, rec := range recs {
		if rec, err = svc.refresh(ctx, rec, asOf); err != nil {
			return PendingSummary{}, err
		}
		if rec.IsPaid() {
			continue // paid concurrently
		}
		summary.PendingPayments = append(summary.PendingPayments, rec)
		summary.TotalPending = summary.TotalPending.Add(rec.Due())
	}
	summary.Count = len(summary.PendingPayments)
	return summary, nil
}

func (svc *service) Query(ctx context.Context, scope access.Scope, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, error) {
	ordering = core.AllowedOrderings(ordering, OrderingFields)
	if len(ordering) == 0 {
		ordering = defaultOrdering
	}
	return svc.repo.QueryRecords(ctx, scope, filter, ordering...)
}

func (svc *service) Count(ctx context.Context, scope access.Scope, filter QueryFilter) (int, error) {
	return svc.repo.CountRecords(ctx, scope, filter)
}

func (svc *service) Get(ctx context.Context, scope access.Scope, id string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !scope.Allows(rec.SocietyName) {
		return Record{}, access.ErrOutOfScope
	}
	return rec, nil
}

// Update applies an administrative correction to a record on behalf of adminEmail,
// who must be allowed to edit the maintenance of the record's society.
// Marking a record Paid without any payment date pays it now, charging base + penalty unless an amount is given.
func (svc *service) Update(ctx context.Context, adminEmail string, id string, ur UpdateRecord) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	p, err := svc.authz.Authorize(ctx, adminEmail, access.CapEditMaintenance, rec.SocietyName)
	if err != nil {
		return Record{}, err
	}
	if err = ur.Validate(svc.validate); err != nil {
		return Record{}, err
	}

	changes := make([]interface{}, 0, 10)
	if ur.Amount != nil {
		rec.Amount = *ur.Amount
		changes = append(changes, "amount", rec.Amount.String())
	}
	if ur.Penalty != nil {
		rec.Penalty = *ur.Penalty
		changes = append(changes, "penalty", rec.Penalty.String())
	}
	if ur.Status != nil {
		rec.Status = Status(*ur.Status)
		changes = append(changes, "status", *ur.Status)
	}
	if ur.PaymentDate != nil {
		pd, err := core.ParseDateField("payment_date", *ur.PaymentDate, svc.opts.Location)
		if err != nil {
			return Record{}, err
		}
		rec.PaymentDate = &pd
		changes = append(changes, "payment_date", pd.Format(time.RFC3339))
	}
	if ur.DueDate != nil {
		due, err := core.ParseDateField("due_date", *ur.DueDate, svc.opts.Location)
		if err != nil {
			return Record{}, err
		}
		rec.DueDate = due
		rec.Period = PeriodOf(due).String()
		changes = append(changes, "due_date", due.Format(time.RFC3339))
	}
	if rec.Status == StatusPaid && rec.PaymentDate == nil {
		pd := svc.Now()
		rec.PaymentDate = &pd
		if ur.Amount == nil {
			rec.Amount = rec.BaseAmount.Add(rec.Penalty)
		}
	}
	rec.UpdatedAt = svc.opts.NowFunc().UTC()

	updated, err := svc.repo.UpdateRecord(ctx, rec)
	if errors.Is(err, ErrPeriodTaken) {
		return Record{}, core.NewValidationError(ErrPeriodTaken, core.FieldError{Field: "due_date", Error: ErrPeriodTaken.Error()})
	}
	if err != nil {
		return Record{}, err
	}

	svc.log.Warn("maintenance record corrected", append([]interface{}{p, "record", rec.ID}, changes...)...)
	return updated, nil
}

// Preview computes the penalty the configured policy would charge. A nil base uses the configured base amount.
func (svc *service) Preview(base *decimal.Decimal, due, asOf time.Time) decimal.Decimal {
	amount := svc.opts.BaseAmount
	if base != nil {
		amount = *base
	}
	return svc.opts.Policy.Penalty(amount, due.In(svc.opts.Location), svc.asOf(asOf))
}
