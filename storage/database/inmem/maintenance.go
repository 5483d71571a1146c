package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
)

type maintenanceRepository struct {
	db *recordTable
}

var _ maintenance.Repository = (*maintenanceRepository)(nil)

func NewMaintenanceRepository(db *DB) maintenance.Repository {
	return &maintenanceRepository{db: db.record}
}

// clone detaches a stored record from callers.
func clone(rec *maintenance.Record) maintenance.Record {
	r := *rec
	if rec.PaymentDate != nil {
		pd := *rec.PaymentDate
		r.PaymentDate = &pd
	}
	return r
}

func (repo *maintenanceRepository) FindOrCreateRecord(_ context.Context, rec maintenance.Record) (maintenance.Record, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := ownerPeriod{ownerID: rec.OwnerID, period: rec.Period}
	if id, ok := repo.db.byOwnerPeriod[key]; ok {
		return clone(repo.db.table[id]), false, nil
	}
	rec.ID = newID()
	repo.db.table[rec.ID] = &rec
	repo.db.byOwnerPeriod[key] = rec.ID
	return clone(&rec), true, nil
}

func (repo *maintenanceRepository) GetRecord(_ context.Context, id string) (maintenance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return clone(rec), nil
	}
	return maintenance.Record{}, maintenance.ErrNotFound
}

func matches(rec *maintenance.Record, scope access.Scope, filter maintenance.QueryFilter) bool {
	if !scope.Allows(rec.SocietyName) {
		return false
	}
	if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
		return false
	}
	if filter.Society != "" && access.NormalizeSociety(rec.SocietyName) != access.NormalizeSociety(filter.Society) {
		return false
	}
	if len(filter.Statuses) > 0 {
		var found bool
		for _, st := range filter.Statuses {
			if rec.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.DueFrom.IsZero() && rec.DueDate.Before(filter.DueFrom) {
		return false
	}
	if !filter.DueTo.IsZero() && rec.DueDate.After(filter.DueTo) {
		return false
	}
	return true
}

// compare returns -1, 0 or 1 comparing a and b on an ordering column.
func compare(a, b maintenance.Record, field string) int {
	cmpStr := func(x, y string) int {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	cmpTime := func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}

	switch field {
	case "due_date":
		return cmpTime(a.DueDate, b.DueDate)
	case "created_at":
		return cmpTime(a.CreatedAt, b.CreatedAt)
	case "period":
		return cmpStr(a.Period, b.Period)
	case "status":
		return cmpStr(string(a.Status), string(b.Status))
	case "society_name":
		return cmpStr(a.SocietyName, b.SocietyName)
	case "flat_number":
		return cmpStr(a.FlatNumber, b.FlatNumber)
	case "amount":
		return a.Amount.Cmp(b.Amount)
	case "penalty":
		return a.Penalty.Cmp(b.Penalty)
	}
	return 0
}

func (repo *maintenanceRepository) QueryRecords(_ context.Context, scope access.Scope, filter maintenance.QueryFilter, ordering ...core.DBOrdering) ([]maintenance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]maintenance.Record, 0)
	for _, rec := range repo.db.table {
		if matches(rec, scope, filter) {
			recs = append(recs, clone(rec))
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(recs[i], recs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

func (repo *maintenanceRepository) CountRecords(_ context.Context, scope access.Scope, filter maintenance.QueryFilter) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, rec := range repo.db.table {
		if matches(rec, scope, filter) {
			count++
		}
	}
	return count, nil
}

func (repo *maintenanceRepository) UpdatePenalty(_ context.Context, id string, status maintenance.Status, penalty decimal.Decimal, updatedAt time.Time) (maintenance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	if rec.IsPaid() {
		return maintenance.Record{}, maintenance.ErrAlreadyPaid
	}
	rec.Status = status
	rec.Penalty = penalty
	rec.UpdatedAt = updatedAt
	return clone(rec), nil
}

func (repo *maintenanceRepository) MarkPaid(_ context.Context, id string, paymentDate time.Time, amount, penalty decimal.Decimal, updatedAt time.Time) (maintenance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	if rec.IsPaid() {
		return maintenance.Record{}, maintenance.ErrAlreadyPaid
	}
	rec.Status = maintenance.StatusPaid
	rec.PaymentDate = &paymentDate
	rec.Amount = amount
	rec.Penalty = penalty
	rec.UpdatedAt = updatedAt
	return clone(rec), nil
}

func (repo *maintenanceRepository) UpdateRecord(_ context.Context, rec maintenance.Record) (maintenance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[rec.ID]
	if !ok {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	oldKey := ownerPeriod{ownerID: orig.OwnerID, period: orig.Period}
	newKey := ownerPeriod{ownerID: orig.OwnerID, period: rec.Period}
	if newKey != oldKey {
		if _, taken := repo.db.byOwnerPeriod[newKey]; taken {
			return maintenance.Record{}, maintenance.ErrPeriodTaken
		}
		delete(repo.db.byOwnerPeriod, oldKey)
		repo.db.byOwnerPeriod[newKey] = rec.ID
	}

	// only mutable fields
	orig.Amount = rec.Amount
	orig.Penalty = rec.Penalty
	orig.Status = rec.Status
	orig.PaymentDate = nil
	if rec.PaymentDate != nil {
		pd := *rec.PaymentDate
		orig.PaymentDate = &pd
	}
	orig.DueDate = rec.DueDate
	orig.Period = rec.Period
	orig.UpdatedAt = rec.UpdatedAt
	return clone(orig), nil
}
