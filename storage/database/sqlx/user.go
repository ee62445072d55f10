package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
)

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{repository{db: db}}
}

const userColumns = "id, identity_id, tenant_id, full_name, email, role, is_active, created_at, updated_at"

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :identity_id, :tenant_id, :full_name, :email, :role, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, usr); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrMemberExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByIdentity(ctx context.Context, identityID string) (user.User, error) {
	var usr user.User
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &usr, `SELECT `+userColumns+` FROM users WHERE identity_id = $1`, identityID)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user by identity")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, scope tenant.Scope, id string) (user.User, error) {
	if err := scope.Check(); err != nil {
		return user.User{}, err
	}
	var usr user.User
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &usr,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, scope tenant.Scope, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	w := scoped(scope, "tenant_id")
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(full_name ILIKE ? OR email ILIKE ?)", pattern, pattern)
	}
	if filter.Role.Valid() {
		w.add("role = ?", filter.Role)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	exec := repo.getExec(ctx)
	users := make([]user.User, 0)
	q := rebind(exec, `SELECT `+userColumns+` FROM users`+w.String()+orderBy(ordering, ""))
	if err := sqlx.SelectContext(ctx, exec, &users, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, scope tenant.Scope, usr user.User) (user.User, error) {
	if err := scope.Check(); err != nil {
		return user.User{}, err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx,
		`UPDATE users SET full_name = $1, role = $2, is_active = $3, updated_at = $4 WHERE tenant_id = $5 AND id = $6`,
		usr.FullName, usr.Role, usr.IsActive, usr.UpdatedAt, scope.TenantID(), usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo userRepository) DeleteUser(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx, `DELETE FROM users WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return checkAffected(res, user.ErrNotFound)
}
