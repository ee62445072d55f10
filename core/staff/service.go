// Package staff manages the members of a school.
package staff

import (
	"context"

	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/user"
)

var ErrSelf = errors.New("you cannot change or remove your own account")

var orderingFields = []string{"full_name", "email", "role", "created_at"}

type RoleChange struct {
	Role authz.Role `json:"role"`
}

type ActiveChange struct {
	IsActive bool `json:"is_active"`
}

type Service struct {
	repo user.Repository
}

func NewService(repo user.Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) List(ctx context.Context, ac access.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	scope, err := ac.Require(authz.UsersView)
	if err != nil {
		return nil, err
	}
	filter.Clean()
	ordering = core.FilterOrdering(ordering, orderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "full_name", Ascending: true}}
	}
	return svc.repo.QueryUsers(ctx, scope, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, ac access.Context, id string) (user.User, error) {
	scope, err := ac.Require(authz.UsersView)
	if err != nil {
		return user.User{}, err
	}
	return svc.repo.GetUser(ctx, scope, id)
}

// notSelf guards the operations an admin may not apply to their own membership.
func notSelf(ac access.Context, id string) error {
	if ac.User != nil && ac.User.ID == id {
		return ErrSelf
	}
	return nil
}

// ChangeRole is reserved to admins; nobody changes their own role.
func (svc *Service) ChangeRole(ctx context.Context, ac access.Context, id string, change RoleChange) (user.User, error) {
	scope, err := ac.Require(authz.UsersEdit)
	if err != nil {
		return user.User{}, err
	}
	if !authz.HasRole(ac.Role, authz.RoleAdmin) {
		return user.User{}, authz.ErrForbidden
	}
	if err = notSelf(ac, id); err != nil {
		return user.User{}, err
	}
	if !change.Role.Valid() {
		return user.User{}, core.NewFieldError("role", authz.ErrUnknownRole.Error())
	}

	usr, err := svc.repo.GetUser(ctx, scope, id)
	if err != nil {
		return user.User{}, err
	}
	usr.Role = change.Role
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, scope, usr)
}

// SetActive deactivates or reactivates a member. Deactivated members are denied at their next request.
func (svc *Service) SetActive(ctx context.Context, ac access.Context, id string, change ActiveChange) (user.User, error) {
	scope, err := ac.Require(authz.UsersEdit)
	if err != nil {
		return user.User{}, err
	}
	if err = notSelf(ac, id); err != nil {
		return user.User{}, err
	}

	usr, err := svc.repo.GetUser(ctx, scope, id)
	if err != nil {
		return user.User{}, err
	}
	usr.IsActive = change.IsActive
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, scope, usr)
}

func (svc *Service) Delete(ctx context.Context, ac access.Context, id string) error {
	scope, err := ac.Require(authz.UsersDelete)
	if err != nil {
		return err
	}
	if err = notSelf(ac, id); err != nil {
		return err
	}
	if _, err = svc.repo.GetUser(ctx, scope, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteUser(ctx, scope, id), "deleting user")
}
