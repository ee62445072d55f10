package invitation_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
	"github.com/samaecole/backend/testutil"
)

var ctx = context.Background()

type fixture struct {
	app    *testutil.App
	school tenant.Tenant
	admin  access.Context
}

func setup(t *testing.T) fixture {
	app := testutil.NewApp(t)
	tn := app.CreateTenant(t, "Institution Sainte Jeanne d'Arc")
	return fixture{app: app, school: tn, admin: app.Member(t, tn, "directeur@sja.sn", authz.RoleAdmin)}
}

func (f fixture) invite(t *testing.T, email string, role authz.Role) invitation.Delivery {
	t.Helper()
	d, err := f.app.Invitations.Create(ctx, f.admin, invitation.NewInvitation{
		Email:    email,
		FullName: "Awa Ndiaye",
		Role:     role,
		Message:  "Bienvenue dans l'équipe",
	})
	require.NoError(t, err)
	return d
}

func TestCreate(t *testing.T) {
	f := setup(t)

	d := f.invite(t, " Awa.Ndiaye@Gmail.com ", authz.RoleSecretaire)
	assert.True(t, d.EmailSent)
	assert.Empty(t, d.DeliveryError)
	assert.Equal(t, "awa.ndiaye@gmail.com", d.Invitation.Email)
	assert.Equal(t, invitation.StatusSent, d.Invitation.Status)
	assert.Equal(t, f.school.ID, d.Invitation.TenantID)
	assert.Equal(t, f.admin.ActorID(), d.Invitation.InvitedBy)
	assert.WithinDuration(t, d.Invitation.CreatedAt.Add(7*24*time.Hour), d.Invitation.ExpiresAt, time.Second)

	sent := f.app.Mail.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "awa.ndiaye@gmail.com", msg.To[0].Address)
	assert.Contains(t, msg.Subject, f.school.Name)
	assert.Contains(t, msg.TextContent, f.app.Conf.InvitationLink(d.Invitation.Token))
	assert.Contains(t, msg.TextContent, "Secrétaire")
	assert.Equal(t, invitation.Ref(d.Invitation.Token), msg.Headers[invitation.RefHeader])
	assert.NotContains(t, msg.Headers[invitation.RefHeader], d.Invitation.Token)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	f.invite(t, "pending@sja.sn", authz.RoleComptable)

	tests := []struct {
		name  string
		data  invitation.NewInvitation
		field string
	}{
		{"admin role", invitation.NewInvitation{Email: "a@sja.sn", FullName: "A", Role: authz.RoleAdmin}, "role"},
		{"no role", invitation.NewInvitation{Email: "a@sja.sn", FullName: "A"}, "role"},
		{"bad email", invitation.NewInvitation{Email: "pas-un-email", FullName: "A", Role: authz.RoleSecretaire}, "email"},
		{"blank name", invitation.NewInvitation{Email: "a@sja.sn", FullName: "   ", Role: authz.RoleSecretaire}, "full_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.app.Invitations.Create(ctx, f.admin, tc.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}

	t.Run("pending invitation", func(t *testing.T) {
		_, err := f.app.Invitations.Create(ctx, f.admin, invitation.NewInvitation{
			Email: "PENDING@sja.sn", FullName: "B", Role: authz.RoleSecretaire,
		})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, invitation.ErrPending, vErr.Err)
		assert.Equal(t, "email", vErr.Fields[0].Field)
	})

	t.Run("existing account", func(t *testing.T) {
		_, err := f.app.Invitations.Create(ctx, f.admin, invitation.NewInvitation{
			Email: "directeur@sja.sn", FullName: "C", Role: authz.RoleSecretaire,
		})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, invitation.ErrIdentityExists, vErr.Err)
	})
}

func TestCreateForbidden(t *testing.T) {
	f := setup(t)
	secretary := f.app.Member(t, f.school, "secretariat@sja.sn", authz.RoleSecretaire)

	_, err := f.app.Invitations.Create(ctx, secretary, invitation.NewInvitation{
		Email: "x@sja.sn", FullName: "X", Role: authz.RoleComptable,
	})
	assert.Equal(t, authz.ErrForbidden, errors.Cause(err))

	_, err = f.app.Invitations.List(ctx, f.app.SuperAdmin(t, "root@samaecole.sn"), invitation.QueryFilter{})
	assert.Equal(t, authz.ErrForbidden, errors.Cause(err))
}

func TestDeliveryFailure(t *testing.T) {
	f := setup(t)
	f.app.Mail.FailWith(errors.New("smtp unreachable"))

	d := f.invite(t, "awa@sja.sn", authz.RoleSecretaire)
	assert.False(t, d.EmailSent)
	assert.NotEmpty(t, d.DeliveryError)

	// the invitation is kept and can be resent
	stored, err := f.app.Invitations.Get(ctx, f.admin, d.Invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusSent, stored.Status)

	f.app.Mail.FailWith(nil)
	resent, err := f.app.Invitations.Resend(ctx, f.admin, d.Invitation.ID)
	require.NoError(t, err)
	assert.True(t, resent.EmailSent)
	assert.Equal(t, d.Invitation.Token, resent.Invitation.Token)
	assert.Equal(t, d.Invitation.ExpiresAt, resent.Invitation.ExpiresAt)
	assert.Len(t, f.app.Mail.SentMessages(), 1)
}

func TestValidate(t *testing.T) {
	f := setup(t)
	d := f.invite(t, "awa@sja.sn", authz.RoleComptable)

	view, err := f.app.Invitations.Validate(ctx, d.Invitation.Token)
	require.NoError(t, err)
	assert.Equal(t, "awa@sja.sn", view.Email)
	assert.Equal(t, "Awa Ndiaye", view.FullName)
	assert.Equal(t, authz.RoleComptable, view.Role)
	assert.Equal(t, "Comptable", view.RoleLabel)
	assert.Equal(t, f.school.Name, view.SchoolName)
	assert.Equal(t, "Bienvenue dans l'équipe", view.Message)

	for _, token := range []string{"", "inconnu", strings.ToUpper(d.Invitation.Token)} {
		_, err = f.app.Invitations.Validate(ctx, token)
		assert.Equal(t, invitation.ErrNotFound, errors.Cause(err), token)
	}
}

func TestExpiry(t *testing.T) {
	f := setup(t)
	clock := testutil.FreezeClock(t, time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC))
	d := f.invite(t, "awa@sja.sn", authz.RoleSecretaire)

	clock.Advance(6 * 24 * time.Hour)
	_, err := f.app.Invitations.Validate(ctx, d.Invitation.Token)
	require.NoError(t, err)

	clock.Advance(2 * 24 * time.Hour)
	_, err = f.app.Invitations.Validate(ctx, d.Invitation.Token)
	assert.Equal(t, invitation.ErrExpired, errors.Cause(err))

	stored, err := f.app.Invitations.Get(ctx, f.admin, d.Invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusExpired, stored.Status)

	_, err = f.app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret1"})
	assert.Equal(t, invitation.ErrExpired, errors.Cause(err))

	// an expired invitation no longer blocks a new one
	again := f.invite(t, "awa@sja.sn", authz.RoleSecretaire)
	assert.NotEqual(t, d.Invitation.Token, again.Invitation.Token)
}

func TestAccept(t *testing.T) {
	f := setup(t)
	d := f.invite(t, "awa@sja.sn", authz.RoleComptable)

	_, err := f.app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret2"})
	require.Error(t, err)

	res, err := f.app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, invitation.OutcomeCompleted, res.Outcome)
	assert.Equal(t, invitation.StatusAccepted, res.Invitation.Status)
	assert.True(t, res.Invitation.AcceptedAt.Valid)

	ac, sess, err := f.app.Auth.SignIn(ctx, identity.Credentials{Email: "awa@sja.sn", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, authz.RoleComptable, ac.Role)
	assert.Equal(t, f.school.ID, ac.Tenant.ID)
	assert.Equal(t, "Awa Ndiaye", ac.User.FullName)

	_, err = f.app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret1"})
	assert.Equal(t, invitation.ErrAlreadyUsed, errors.Cause(err))
	_, err = f.app.Invitations.Validate(ctx, d.Invitation.Token)
	assert.Equal(t, invitation.ErrAlreadyUsed, errors.Cause(err))
}

func TestAcceptRequiringConfirmation(t *testing.T) {
	app := testutil.NewApp(t, func(conf *core.Config) { conf.Auth.RequireEmailConfirmation = true })
	tn := app.CreateTenant(t, "Cours Privés Le Savoir")
	admin := app.Member(t, tn, "admin@savoir.sn", authz.RoleAdmin)
	d, err := app.Invitations.Create(ctx, admin, invitation.NewInvitation{Email: "moussa@savoir.sn", FullName: "Moussa Diop", Role: authz.RoleSecretaire})
	require.NoError(t, err)
	app.Mail.Reset()

	res, err := app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, invitation.OutcomeConfirmationRequired, res.Outcome)

	sent := app.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "moussa@savoir.sn", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "confirmer-email")
}

func TestConcurrentAccept(t *testing.T) {
	f := setup(t)
	d := f.invite(t, "awa@sja.sn", authz.RoleSecretaire)

	const consumers = 5
	var (
		wg   sync.WaitGroup
		errs = make([]error, consumers)
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret1"})
		}(i)
	}
	wg.Wait()

	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.Equal(t, invitation.ErrAlreadyUsed, errors.Cause(err))
	}
	assert.Equal(t, 1, winners)

	members, err := f.app.Staff.List(ctx, f.admin, user.QueryFilter{Search: "awa@sja.sn"}, nil)
	require.NoError(t, err)
	var count int
	for _, m := range members {
		if m.Email == "awa@sja.sn" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCancelAndDelete(t *testing.T) {
	f := setup(t)
	d := f.invite(t, "awa@sja.sn", authz.RoleSecretaire)

	inv, err := f.app.Invitations.Cancel(ctx, f.admin, d.Invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusCancelled, inv.Status)

	_, err = f.app.Invitations.Validate(ctx, d.Invitation.Token)
	assert.Equal(t, invitation.ErrCancelled, errors.Cause(err))
	_, err = f.app.Invitations.Resend(ctx, f.admin, d.Invitation.ID)
	assert.Equal(t, invitation.ErrCancelled, errors.Cause(err))
	_, err = f.app.Invitations.Cancel(ctx, f.admin, d.Invitation.ID)
	assert.Equal(t, invitation.ErrCancelled, errors.Cause(err))

	cancelled, err := f.app.Invitations.List(ctx, f.admin, invitation.QueryFilter{Status: invitation.StatusCancelled})
	require.NoError(t, err)
	assert.Len(t, cancelled, 1)

	require.NoError(t, f.app.Invitations.Delete(ctx, f.admin, d.Invitation.ID))
	_, err = f.app.Invitations.Get(ctx, f.admin, d.Invitation.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestTenantIsolation(t *testing.T) {
	f := setup(t)
	d := f.invite(t, "awa@sja.sn", authz.RoleSecretaire)

	other := f.app.CreateTenant(t, "Groupe Scolaire Les Pédagogues")
	otherAdmin := f.app.Member(t, other, "admin@pedagogues.sn", authz.RoleAdmin)

	_, err := f.app.Invitations.Get(ctx, otherAdmin, d.Invitation.ID)
	assert.True(t, core.IsNotFound(err))
	err = f.app.Invitations.Delete(ctx, otherAdmin, d.Invitation.ID)
	assert.True(t, core.IsNotFound(err))

	list, err := f.app.Invitations.List(ctx, otherAdmin, invitation.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFailedAcceptKeepsInvitation(t *testing.T) {
	f := setup(t)
	d := f.invite(t, "awa@sja.sn", authz.RoleSecretaire)

	// the address got an account elsewhere after the invitation was sent
	_, err := f.app.Identities.Register(ctx, identity.NewIdentity{Email: "awa@sja.sn", Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)

	_, err = f.app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret1"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, identity.ErrEmailExists, vErr.Err)

	stored, err := f.app.Invitations.Get(ctx, f.admin, d.Invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusSent, stored.Status)
	assert.False(t, stored.AcceptedAt.Valid)
	_, err = f.app.Invitations.Validate(ctx, d.Invitation.Token)
	assert.NoError(t, err)

	members, err := f.app.Staff.List(ctx, f.admin, user.QueryFilter{Search: "awa@sja.sn"}, nil)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestReissueAdmin(t *testing.T) {
	app := testutil.NewApp(t)
	clock := testutil.FreezeClock(t, time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC))
	sr, err := app.Tenants.SubmitSignup(ctx, tenant.NewSignup{
		SchoolName:  "Ecole Les Pintades",
		ContactName: "Fatou Sow",
		Email:       "fatou@pintades.sn",
		Phone:       "77 123 45 67",
	})
	require.NoError(t, err)
	res, err := app.Tenants.Approve(ctx, "reviewer", sr.ID, tenant.Approval{})
	require.NoError(t, err)
	ops := app.SuperAdmin(t, "ops@samaecole.sn")

	other := app.CreateTenant(t, "Cours Privés Le Savoir")
	_, err = app.Invitations.ReissueAdmin(ctx, app.Member(t, other, "admin@savoir.sn", authz.RoleAdmin), res.Tenant.ID)
	assert.Equal(t, authz.ErrForbidden, errors.Cause(err))

	_, err = app.Invitations.ReissueAdmin(ctx, ops, "inconnu")
	assert.True(t, core.IsNotFound(err))
	_, err = app.Invitations.ReissueAdmin(ctx, ops, other.ID)
	assert.Equal(t, invitation.ErrTenantJoined, errors.Cause(err))

	// the first invitation expired unused: a new one replaces it
	app.Mail.Reset()
	clock.Advance(8 * 24 * time.Hour)
	d, err := app.Invitations.ReissueAdmin(ctx, ops, res.Tenant.ID)
	require.NoError(t, err)
	assert.True(t, d.EmailSent)
	assert.NotEqual(t, res.InvitationID, d.Invitation.ID)
	assert.Equal(t, invitation.StatusSent, d.Invitation.Status)
	assert.Equal(t, "fatou@pintades.sn", d.Invitation.Email)
	assert.Equal(t, "Fatou Sow", d.Invitation.FullName)
	assert.Equal(t, authz.RoleAdmin, d.Invitation.Role)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), d.Invitation.ExpiresAt)

	// a valid one is sent again as is
	again, err := app.Invitations.ReissueAdmin(ctx, ops, res.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Invitation.ID, again.Invitation.ID)
	assert.Len(t, app.Mail.SentMessages(), 2)

	_, err = app.Invitations.Accept(ctx, d.Invitation.Token, invitation.Acceptance{Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)
	_, err = app.Invitations.ReissueAdmin(ctx, ops, res.Tenant.ID)
	assert.Equal(t, invitation.ErrTenantJoined, errors.Cause(err))
}
