package inmemdb

import (
	"context"

	"github.com/trezcool/entrykart/core/access"
)

type accessRepository struct {
	admins *adminTable
	guards *guardTable
}

var _ access.Repository = (*accessRepository)(nil)

func NewAccessRepository(db *DB) access.Repository {
	return &accessRepository{admins: db.admin, guards: db.guard}
}

func (repo *accessRepository) CreateAdmin(_ context.Context, adm access.Admin) (access.Admin, error) {
	repo.admins.Lock()
	defer repo.admins.Unlock()

	adm.ID = newID()
	repo.admins.table[adm.ID] = &adm
	return adm, nil
}

func (repo *accessRepository) GetAdminByEmail(_ context.Context, email string) (access.Admin, error) {
	repo.admins.RLock()
	defer repo.admins.RUnlock()

	for _, adm := range repo.admins.table {
		if adm.Email == email {
			return *adm, nil
		}
	}
	return access.Admin{}, access.ErrAdminNotFound
}

func (repo *accessRepository) CreateGuard(_ context.Context, guard access.SecurityGuard) (access.SecurityGuard, error) {
	repo.guards.Lock()
	defer repo.guards.Unlock()

	guard.ID = newID()
	repo.guards.table[guard.ID] = &guard
	return guard, nil
}

func (repo *accessRepository) GetGuardByEmail(_ context.Context, email string) (access.SecurityGuard, error) {
	repo.guards.RLock()
	defer repo.guards.RUnlock()

	for _, guard := range repo.guards.table {
		if guard.Email == email {
			return *guard, nil
		}
	}
	return access.SecurityGuard{}, access.ErrGuardNotFound
}
