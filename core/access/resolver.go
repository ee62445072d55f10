package access

import (
	"context"

	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/internal/scope"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
)

var (
	ErrUnprovisioned = errors.New("Ce compte n'est rattaché à aucune école. Contactez l'administrateur de votre école.")
	ErrDeactivated   = errors.New("Votre compte a été désactivé. Contactez l'administrateur de votre école.")
)

// PlatformRoles reports the platform role of an identity.
type PlatformRoles interface {
	IsSuperAdmin(ctx context.Context, identityID string) (bool, error)
}

type Resolver struct {
	platform PlatformRoles
	users    user.Repository
	tenants  tenant.Repository
}

func NewResolver(platform PlatformRoles, users user.Repository, tenants tenant.Repository) *Resolver {
	return &Resolver{platform: platform, users: users, tenants: tenants}
}

// Resolve builds the Context of ident: platform role first, then tenant membership.
// An identity with neither gets ErrUnprovisioned; nothing is created on the fly.
func (r *Resolver) Resolve(ctx context.Context, ident identity.Identity) (Context, error) {
	superAdmin, err := r.platform.IsSuperAdmin(ctx, ident.ID)
	if err != nil {
		return Context{}, errors.Wrap(err, "checking platform role")
	}
	if superAdmin {
		return Context{Identity: ident, Kind: KindSuperAdmin}, nil
	}

	usr, err := r.users.GetUserByIdentity(ctx, ident.ID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Context{}, ErrUnprovisioned
		}
		return Context{}, errors.Wrap(err, "getting tenant user")
	}

	t, err := r.tenants.GetTenant(ctx, usr.TenantID)
	if err != nil {
		if errors.Cause(err) == tenant.ErrNotFound {
			return Context{}, ErrUnprovisioned
		}
		return Context{}, errors.Wrap(err, "getting tenant")
	}

	return Context{
		Identity: ident,
		Kind:     KindTenant,
		Tenant:   &t,
		User:     &usr,
		Role:     usr.Role,
		scope:    scope.New(t.ID),
	}, nil
}
