package user

import (
	"context"
	"time"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/tenant"
)

var (
	ErrNotFound     = core.NewNotFoundError("user not found")
	ErrMemberExists = core.NewValidationError(nil, core.FieldError{Field: "email", Error: "this account already belongs to a school"})
)

// User is the membership of an identity in a tenant, with its role.
type User struct {
	ID         string     `json:"id" db:"id"`
	IdentityID string     `json:"identity_id" db:"identity_id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	FullName   string     `json:"full_name" db:"full_name"`
	Email      string     `json:"email" db:"email"`
	Role       authz.Role `json:"role" db:"role"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

type QueryFilter struct {
	Search   string     `query:"search"`
	Role     authz.Role `query:"role"`
	IsActive *bool      `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

type Repository interface {
	CreateUser(ctx context.Context, usr User) (User, error)
	// GetUserByIdentity is unscoped: it resolves which tenant an identity belongs to.
	GetUserByIdentity(ctx context.Context, identityID string) (User, error)

	GetUser(ctx context.Context, scope tenant.Scope, id string) (User, error)
	QueryUsers(ctx context.Context, scope tenant.Scope, filter QueryFilter, ordering []core.DBOrdering) ([]User, error)
	UpdateUser(ctx context.Context, scope tenant.Scope, usr User) (User, error)
	DeleteUser(ctx context.Context, scope tenant.Scope, id string) error
}
