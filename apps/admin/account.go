package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/tenant"
)

// createSuperAdmin registers a super-admin, or promotes the existing account with that email
// and replaces its password.
func (cli *commandLine) createSuperAdmin(email, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	ident, err := cli.identities.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err = cli.identities.SetPassword(ctx, email, pwd); err != nil {
			return errors.Wrap(err, "setting password")
		}
	case core.IsNotFound(err):
		ident, err = cli.identities.Register(ctx, identity.NewIdentity{Email: email, Password: pwd, PasswordConfirm: pwd})
		if err != nil {
			return err
		}
	default:
		return err
	}
	return cli.identities.GrantSuperAdmin(ctx, ident.ID)
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.identities.SetPassword(context.Background(), core.CleanString(email, true /* lower */), pwd)
}

func (cli *commandLine) setTenantStatus(id, status, reason string) error {
	t, err := cli.tenants.SetStatus(context.Background(), id, tenant.StatusChange{
		Status: tenant.Status(status),
		Reason: reason,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", t.Name, t.Status)
	return nil
}
