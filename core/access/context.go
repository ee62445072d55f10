// Package access resolves who is making a request and what they may touch.
package access

import (
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
)

var ErrNoTenantScope = errors.New("no school attached to this account")

type Kind uint8

const (
	KindTenant Kind = iota + 1
	KindSuperAdmin
)

func (k Kind) String() string {
	switch k {
	case KindTenant:
		return "tenant"
	case KindSuperAdmin:
		return "super_admin"
	}
	return ""
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Context is the resolved caller of a request. It is built once per request and
// passed explicitly to every service needing it.
type Context struct {
	Identity  identity.Identity
	SessionID string
	Kind      Kind
	Tenant    *tenant.Tenant // nil for super-admins
	User      *user.User     // nil for super-admins
	Role      authz.Role

	scope tenant.Scope // minted by the Resolver only
}

func (c Context) IsSuperAdmin() bool {
	return c.Kind == KindSuperAdmin
}

// Scope is the only way services obtain a tenant scope for repositories.
func (c Context) Scope() (tenant.Scope, error) {
	if c.Kind != KindTenant || !c.scope.Valid() {
		return tenant.Scope{}, ErrNoTenantScope
	}
	return c.scope, nil
}

func (c Context) Can(perm authz.Permission) bool {
	return c.Kind == KindTenant && authz.HasPermission(c.Role, perm)
}

// Require returns the scope when the caller holds perm, authz.ErrForbidden otherwise.
func (c Context) Require(perm authz.Permission) (tenant.Scope, error) {
	scope, err := c.Scope()
	if err != nil {
		return tenant.Scope{}, authz.ErrForbidden
	}
	if !authz.HasPermission(c.Role, perm) {
		return tenant.Scope{}, authz.ErrForbidden
	}
	return scope, nil
}

// ActorID identifies the caller in audit columns: the tenant user, or the identity of a super-admin.
func (c Context) ActorID() string {
	if c.User != nil {
		return c.User.ID
	}
	return c.Identity.ID
}

func (c Context) ActorName() string {
	if c.User != nil && c.User.FullName != "" {
		return c.User.FullName
	}
	return c.Identity.Email
}

// Summary is what the client needs to adapt its UI to the caller.
type Summary struct {
	Email       string             `json:"email"`
	Kind        Kind               `json:"kind"`
	Tenant      *tenant.Tenant     `json:"tenant,omitempty"`
	User        *user.User         `json:"user,omitempty"`
	Role        authz.Role         `json:"role,omitempty"`
	Permissions []authz.Permission `json:"permissions"`
}

func (c Context) Summary() Summary {
	s := Summary{
		Email:       c.Identity.Email,
		Kind:        c.Kind,
		Tenant:      c.Tenant,
		User:        c.User,
		Permissions: []authz.Permission{},
	}
	if c.Kind == KindTenant {
		s.Role = c.Role
		s.Permissions = authz.Permissions(c.Role)
	}
	return s
}
