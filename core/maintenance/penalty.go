package maintenance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/entrykart/core"
)

const (
	DefaultGraceDay    = 10
	DefaultCreationDay = 25
)

var (
	DefaultBaseAmount = decimal.NewFromInt(1000)

	// DefaultPolicy charges 10% of the base amount per started week after the grace day.
	DefaultPolicy PenaltyPolicy = WeeklyPolicy{
		GraceDay:   DefaultGraceDay,
		Rate:       decimal.New(1, -1),
		PeriodDays: 7,
	}
)

const day = 24 * time.Hour

// wallClock reads t's local date and time as UTC, so that day arithmetic counts
// calendar days across daylight saving changes.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// PenaltyPolicy computes the late fee of a bill of `base` due at `due`, evaluated at `asOf`.
// Implementations must be pure and non-decreasing in asOf.
type PenaltyPolicy interface {
	Penalty(base decimal.Decimal, due, asOf time.Time) decimal.Decimal
}

// CalculatePenalty applies DefaultPolicy.
func CalculatePenalty(base decimal.Decimal, due, asOf time.Time) decimal.Decimal {
	return DefaultPolicy.Penalty(base, due, asOf)
}

// WeeklyPolicy charges base*Rate for every started period of PeriodDays days
// elapsed since the grace day of the due month. The penalty is uncapped.
type WeeklyPolicy struct {
	GraceDay   int
	Rate       decimal.Decimal
	PeriodDays int
}

func (p WeeklyPolicy) Penalty(base decimal.Decimal, due, asOf time.Time) decimal.Decimal {
	asOf = asOf.In(due.Location())

	// still within the grace window of the due month
	if asOf.Day() <= p.GraceDay && asOf.Month() == due.Month() && asOf.Year() == due.Year() {
		return decimal.Zero
	}

	anchor := PeriodOf(due).Day(p.GraceDay, time.UTC)
	daysLate := int64(wallClock(asOf).Sub(anchor) / day) // truncation == floor for positive durations
	if daysLate <= 0 {
		return decimal.Zero
	}

	periodDays := int64(p.PeriodDays)
	periods := (daysLate + periodDays - 1) / periodDays
	return base.Mul(p.Rate).Mul(decimal.NewFromInt(periods))
}

// DailyPolicy charges a flat PerDay amount for every started day past the due date, without grace.
type DailyPolicy struct {
	PerDay decimal.Decimal
}

func (p DailyPolicy) Penalty(_ decimal.Decimal, due, asOf time.Time) decimal.Decimal {
	late := wallClock(asOf.In(due.Location())).Sub(wallClock(due))
	if late <= 0 {
		return decimal.Zero
	}
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return p.PerDay.Mul(decimal.NewFromInt(days))
}

// NewPolicy builds the penalty policy selected in the config.
func NewPolicy(conf core.MaintenanceConfig) (PenaltyPolicy, error) {
	switch conf.PenaltyPolicy {
	case core.PenaltyPolicyWeekly, "":
		return WeeklyPolicy{GraceDay: conf.GraceDay, Rate: conf.PenaltyRate, PeriodDays: conf.PenaltyPeriod}, nil
	case core.PenaltyPolicyDaily:
		return DailyPolicy{PerDay: conf.DailyPenalty}, nil
	default:
		return nil, fmt.Errorf("unknown penalty policy %q", conf.PenaltyPolicy)
	}
}
