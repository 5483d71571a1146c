package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
)

type (
	DB struct {
		admin   *adminTable
		guard   *guardTable
		society *societyTable
		owner   *ownerTable
		record  *recordTable
	}

	adminTable struct {
		sync.RWMutex
		table map[string]*access.Admin
	}

	guardTable struct {
		sync.RWMutex
		table map[string]*access.SecurityGuard
	}

	societyTable struct {
		sync.RWMutex
		table map[string]*society.Society
	}

	ownerTable struct {
		sync.RWMutex
		table map[string]*society.FlatOwner
	}

	recordTable struct {
		sync.RWMutex
		table map[string]*maintenance.Record
		// unique (owner_id, period) index
		byOwnerPeriod map[ownerPeriod]string
	}

	ownerPeriod struct {
		ownerID string
		period  string
	}
)

func Open() *DB {
	return &DB{
		admin:   &adminTable{table: make(map[string]*access.Admin)},
		guard:   &guardTable{table: make(map[string]*access.SecurityGuard)},
		society: &societyTable{table: make(map[string]*society.Society)},
		owner:   &ownerTable{table: make(map[string]*society.FlatOwner)},
		record: &recordTable{
			table:         make(map[string]*maintenance.Record),
			byOwnerPeriod: make(map[ownerPeriod]string),
		},
	}
}

// Reset drops every row. Used in tests.
func (db *DB) Reset() {
	db.admin.Lock()
	db.admin.table = make(map[string]*access.Admin)
	db.admin.Unlock()

	db.guard.Lock()
	db.guard.table = make(map[string]*access.SecurityGuard)
	db.guard.Unlock()

	db.society.Lock()
	db.society.table = make(map[string]*society.Society)
	db.society.Unlock()

	db.owner.Lock()
	db.owner.table = make(map[string]*society.FlatOwner)
	db.owner.Unlock()

	db.record.Lock()
	db.record.table = make(map[string]*maintenance.Record)
	db.record.byOwnerPeriod = make(map[ownerPeriod]string)
	db.record.Unlock()
}

func newID() string {
	return uuid.New().String()
}
