package inmemdb

import (
	"context"
	"strings"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

var userComparators = comparators[user.User]{
	"full_name":  func(a, b user.User) int { return strings.Compare(a.FullName, b.FullName) },
	"email":      func(a, b user.User) int { return strings.Compare(a.Email, b.Email) },
	"role":       func(a, b user.User) int { return strings.Compare(a.Role.String(), b.Role.String()) },
	"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.users {
		if u.IdentityID == usr.IdentityID {
			return user.User{}, user.ErrMemberExists
		}
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByIdentity(_ context.Context, identityID string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, u := range repo.db.users {
		if u.IdentityID == identityID {
			return *u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUser(_ context.Context, scope tenant.Scope, id string) (user.User, error) {
	if err := scope.Check(); err != nil {
		return user.User{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if u, ok := repo.db.users[id]; ok && u.TenantID == scope.TenantID() {
		return *u, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, scope tenant.Scope, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0)
	for _, u := range repo.db.users {
		if u.TenantID != scope.TenantID() {
			continue
		}
		if filter.Search != "" && !matches(filter.Search, u.FullName, u.Email) {
			continue
		}
		if filter.Role.Valid() && u.Role != filter.Role {
			continue
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		users = append(users, *u)
	}
	sortRows(users, ordering, userComparators)
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, scope tenant.Scope, usr user.User) (user.User, error) {
	if err := scope.Check(); err != nil {
		return user.User{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.users[usr.ID]
	if !ok || stored.TenantID != scope.TenantID() {
		return user.User{}, user.ErrNotFound
	}
	// only the mutable fields
	stored.FullName = usr.FullName
	stored.Role = usr.Role
	stored.IsActive = usr.IsActive
	stored.UpdatedAt = usr.UpdatedAt
	return *stored, nil
}

func (repo *userRepository) DeleteUser(_ context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	if u, ok := repo.db.users[id]; !ok || u.TenantID != scope.TenantID() {
		return user.ErrNotFound
	}
	delete(repo.db.users, id)
	return nil
}
