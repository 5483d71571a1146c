package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/society"
)

type societyRepository struct {
	societies *societyTable
	owners    *ownerTable
	records   *recordTable
}

var _ society.Repository = (*societyRepository)(nil)

func NewSocietyRepository(db *DB) society.Repository {
	return &societyRepository{societies: db.society, owners: db.owner, records: db.record}
}

func (repo *societyRepository) CreateSociety(_ context.Context, soc society.Society) (society.Society, error) {
	repo.societies.Lock()
	defer repo.societies.Unlock()

	key := access.NormalizeSociety(soc.Name)
	for _, s := range repo.societies.table {
		if access.NormalizeSociety(s.Name) == key {
			return society.Society{}, society.ErrSocietyExists
		}
	}
	soc.ID = newID()
	soc.Flats = append([]string(nil), soc.Flats...)
	repo.societies.table[soc.ID] = &soc
	return soc, nil
}

func (repo *societyRepository) GetSocietyByID(_ context.Context, id string) (society.Society, error) {
	repo.societies.RLock()
	defer repo.societies.RUnlock()

	if soc, ok := repo.societies.table[id]; ok {
		return *soc, nil
	}
	return society.Society{}, society.ErrSocietyNotFound
}

func (repo *societyRepository) GetSocietyByName(_ context.Context, name string) (society.Society, error) {
	repo.societies.RLock()
	defer repo.societies.RUnlock()

	key := access.NormalizeSociety(name)
	for _, soc := range repo.societies.table {
		if access.NormalizeSociety(soc.Name) == key {
			return *soc, nil
		}
	}
	return society.Society{}, society.ErrSocietyNotFound
}

func (repo *societyRepository) QuerySocieties(_ context.Context, scope access.Scope) ([]society.Society, error) {
	repo.societies.RLock()
	defer repo.societies.RUnlock()

	socs := make([]society.Society, 0, len(repo.societies.table))
	for _, soc := range repo.societies.table {
		if scope.Allows(soc.Name) {
			socs = append(socs, *soc)
		}
	}
	sort.Slice(socs, func(i, j int) bool { return socs[i].Name < socs[j].Name })
	return socs, nil
}

func (repo *societyRepository) CountSocieties(_ context.Context, scope access.Scope) (int, error) {
	repo.societies.RLock()
	defer repo.societies.RUnlock()

	var count int
	for _, soc := range repo.societies.table {
		if scope.Allows(soc.Name) {
			count++
		}
	}
	return count, nil
}

func (repo *societyRepository) UpdateSociety(_ context.Context, soc society.Society) (society.Society, error) {
	repo.societies.Lock()
	defer repo.societies.Unlock()

	stored, ok := repo.societies.table[soc.ID]
	if !ok {
		return society.Society{}, society.ErrSocietyNotFound
	}
	stored.Location = soc.Location
	stored.Flats = append([]string(nil), soc.Flats...)
	stored.AdminEmail = soc.AdminEmail

	repo.owners.Lock()
	defer repo.owners.Unlock()
	key := access.NormalizeSociety(stored.Name)
	for _, owner := range repo.owners.table {
		if access.NormalizeSociety(owner.SocietyName) == key {
			owner.AdminEmail = stored.AdminEmail
		}
	}
	return *stored, nil
}

func (repo *societyRepository) DeleteSociety(_ context.Context, id string) error {
	repo.societies.Lock()
	defer repo.societies.Unlock()

	soc, ok := repo.societies.table[id]
	if !ok {
		return society.ErrSocietyNotFound
	}
	delete(repo.societies.table, id)

	repo.owners.Lock()
	defer repo.owners.Unlock()
	key := access.NormalizeSociety(soc.Name)
	for ownerID, owner := range repo.owners.table {
		if access.NormalizeSociety(owner.SocietyName) == key {
			delete(repo.owners.table, ownerID)
			repo.deleteRecordsOf(ownerID)
		}
	}
	return nil
}

// deleteRecordsOf drops the maintenance records of an owner.
func (repo *societyRepository) deleteRecordsOf(ownerID string) {
	repo.records.Lock()
	defer repo.records.Unlock()

	for id, rec := range repo.records.table {
		if rec.OwnerID == ownerID {
			delete(repo.records.byOwnerPeriod, ownerPeriod{ownerID: ownerID, period: rec.Period})
			delete(repo.records.table, id)
		}
	}
}

func (repo *societyRepository) SocietyNamesByAdmin(_ context.Context, adminEmail string) ([]string, error) {
	repo.societies.RLock()
	defer repo.societies.RUnlock()

	names := make([]string, 0)
	for _, soc := range repo.societies.table {
		if soc.AdminEmail == adminEmail {
			names = append(names, soc.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (repo *societyRepository) CreateOwner(_ context.Context, owner society.FlatOwner) (society.FlatOwner, error) {
	repo.owners.Lock()
	defer repo.owners.Unlock()

	for _, o := range repo.owners.table {
		if o.Email == owner.Email {
			return society.FlatOwner{}, society.ErrOwnerExists
		}
	}
	owner.ID = newID()
	repo.owners.table[owner.ID] = &owner
	return owner, nil
}

func (repo *societyRepository) GetOwnerByID(_ context.Context, id string) (society.FlatOwner, error) {
	repo.owners.RLock()
	defer repo.owners.RUnlock()

	if owner, ok := repo.owners.table[id]; ok {
		return *owner, nil
	}
	return society.FlatOwner{}, society.ErrOwnerNotFound
}

func (repo *societyRepository) GetOwnerByEmail(_ context.Context, email string) (society.FlatOwner, error) {
	repo.owners.RLock()
	defer repo.owners.RUnlock()

	for _, owner := range repo.owners.table {
		if owner.Email == email {
			return *owner, nil
		}
	}
	return society.FlatOwner{}, society.ErrOwnerNotFound
}

func (repo *societyRepository) QueryOwners(_ context.Context, scope access.Scope) ([]society.FlatOwner, error) {
	repo.owners.RLock()
	defer repo.owners.RUnlock()

	owners := make([]society.FlatOwner, 0, len(repo.owners.table))
	for _, owner := range repo.owners.table {
		if scope.Allows(owner.SocietyName) {
			owners = append(owners, *owner)
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].SocietyName != owners[j].SocietyName {
			return owners[i].SocietyName < owners[j].SocietyName
		}
		return owners[i].FlatNumber < owners[j].FlatNumber
	})
	return owners, nil
}

func (repo *societyRepository) UpdateOwner(_ context.Context, owner society.FlatOwner) (society.FlatOwner, error) {
	repo.owners.Lock()
	defer repo.owners.Unlock()

	stored, ok := repo.owners.table[owner.ID]
	if !ok {
		return society.FlatOwner{}, society.ErrOwnerNotFound
	}
	stored.FlatNumber = owner.FlatNumber
	stored.OwnerName = owner.OwnerName
	stored.Profession = owner.Profession
	stored.Contact = owner.Contact
	return *stored, nil
}

func (repo *societyRepository) DeleteOwner(_ context.Context, id string) error {
	repo.owners.Lock()
	defer repo.owners.Unlock()

	if _, ok := repo.owners.table[id]; !ok {
		return society.ErrOwnerNotFound
	}
	delete(repo.owners.table, id)
	repo.deleteRecordsOf(id)
	return nil
}
