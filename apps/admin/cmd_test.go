package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/testutil"
)

var ctx = context.Background()

func setup(t *testing.T) (*commandLine, *testutil.App) {
	app := testutil.NewApp(t)
	return &commandLine{
		identities: app.Identities,
		tenants:    app.Tenants,
		migrate:    migrateWith(nil),
	}, app
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func withPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	orig := runMigrationFunc
	t.Cleanup(func() { runMigrationFunc = orig })
	runMigrationFunc = func(_ context.Context, _ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_createSuperAdmin(t *testing.T) {
	cli, app := setup(t)
	tn := app.CreateTenant(t, "Cours Privés Le Savoir")
	app.CreateMember(t, tn, "directeur@savoir.sn", authz.RoleAdmin)

	tests := []cliTest{
		{name: "no args", args: []string{"createsuperadmin"}, wantErr: errHelp},
		{name: "no password", args: []string{"createsuperadmin", "-email", "ops@samaecole.sn"}, wantErr: errHelp},
		{name: "new account", args: []string{"createsuperadmin", "-email", "Ops@SamaEcole.sn"}, pwd: "secret12"},
		{name: "existing account", args: []string{"createsuperadmin", "-email", "directeur@savoir.sn"}, pwd: "secret34"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			withPassword(t, tt.pwd)
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			ident, err := app.Identities.Authenticate(ctx, identity.Credentials{Email: args[3], Password: tt.pwd})
			require.NoError(t, err)
			isSuper, err := app.Identities.IsSuperAdmin(ctx, ident.ID)
			require.NoError(t, err)
			assert.True(t, isSuper)
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, app := setup(t)
	tn := app.CreateTenant(t, "Cours Privés Le Savoir")
	app.CreateMember(t, tn, "compta@savoir.sn", authz.RoleComptable)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "compta@savoir.sn"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-email", "inconnu@savoir.sn"}, pwd: "secret12", wantErr: identity.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", "compta@savoir.sn"}, pwd: "secret12"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			withPassword(t, tt.pwd)
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			_, err = app.Identities.Authenticate(ctx, identity.Credentials{Email: "compta@savoir.sn", Password: tt.pwd})
			assert.NoError(t, err)
		})
	}
}

func Test_commandLine_setTenantStatus(t *testing.T) {
	cli, app := setup(t)
	tn := app.CreateTenant(t, "Cours Privés Le Savoir")

	err := cli.run([]string{"admin", "settenantstatus", "-id", tn.ID})
	assert.Equal(t, errHelp, err)

	err = cli.run([]string{"admin", "settenantstatus", "-id", tn.ID, "-status", "suspendu"})
	assert.Equal(t, []string{"reason"}, testutil.ErrorFields(err))

	err = cli.run([]string{"admin", "settenantstatus", "-id", tn.ID, "-status", "suspendu", "-reason", "Impayés"})
	require.NoError(t, err)
	got, err := app.Tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusSuspended, got.Status)
	assert.Equal(t, "Impayés", got.StatusReason)

	err = cli.run([]string{"admin", "settenantstatus", "-id", "inconnu", "-status", "actif"})
	assert.True(t, core.IsNotFound(err))
}
