package authz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name string
		role Role
		perm Permission
		want bool
	}{
		{name: "admin: invoices", role: RoleAdmin, perm: InvoicesCreate, want: true},
		{name: "admin: arbitrary permission", role: RoleAdmin, perm: Permission("anything.at.all"), want: true},
		{name: "secretaire: students.view", role: RoleSecretaire, perm: StudentsView, want: true},
		{name: "secretaire: classes.view", role: RoleSecretaire, perm: ClassesView, want: true},
		{name: "secretaire: fees.view", role: RoleSecretaire, perm: FeesView, want: true},
		{name: "secretaire: invoices.create", role: RoleSecretaire, perm: InvoicesCreate, want: false},
		{name: "secretaire: students.create", role: RoleSecretaire, perm: StudentsCreate, want: false},
		{name: "comptable: invoices.view", role: RoleComptable, perm: InvoicesView, want: true},
		{name: "comptable: invoices.create", role: RoleComptable, perm: InvoicesCreate, want: true},
		{name: "comptable: payments.delete", role: RoleComptable, perm: PaymentsDelete, want: true},
		{name: "comptable: fees.edit", role: RoleComptable, perm: FeesEdit, want: true},
		{name: "comptable: users.invite", role: RoleComptable, perm: UsersInvite, want: false},
		{name: "comptable: students.view", role: RoleComptable, perm: StudentsView, want: false},
		{name: "secretaire: dashboard.view", role: RoleSecretaire, perm: DashboardView, want: true},
		{name: "comptable: dashboard.view", role: RoleComptable, perm: DashboardView, want: true},
		{name: "comptable: reports.export", role: RoleComptable, perm: ReportsExport, want: false},
		{name: "professeur: nothing", role: RoleProfesseur, perm: StudentsView, want: false},
		{name: "professeur: dashboard.view", role: RoleProfesseur, perm: DashboardView, want: false},
		{name: "unknown role", role: RoleUnknown, perm: StudentsView, want: false},
		{name: "out of range role", role: Role(42), perm: StudentsView, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.perm))
		})
	}
}

func TestPermissionRows(t *testing.T) {
	require.Len(t, rolePermissions, int(roleCount))
	assert.Equal(t, AllPermissions, rolePermissions[RoleAdmin])
	assert.Empty(t, rolePermissions[RoleUnknown])
	assert.Empty(t, rolePermissions[RoleProfesseur])
	assert.Contains(t, rolePermissions[RoleSecretaire], StudentsView)
	assert.Contains(t, rolePermissions[RoleComptable], InvoicesCreate)
}

func TestAdminHasEveryPermission(t *testing.T) {
	for _, p := range AllPermissions {
		assert.True(t, HasPermission(RoleAdmin, p), p)
	}
}

func TestHasRole(t *testing.T) {
	assert.True(t, HasRole(RoleComptable, RoleAdmin, RoleComptable))
	assert.False(t, HasRole(RoleSecretaire, RoleAdmin, RoleComptable))
	assert.False(t, HasRole(RoleAdmin))
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(RoleComptable, PaymentsCreate))
	assert.Equal(t, ErrForbidden, Require(RoleSecretaire, PaymentsCreate))
}

func TestPermissions_isACopy(t *testing.T) {
	perms := Permissions(RoleSecretaire)
	require.NotEmpty(t, perms)
	perms[0] = InvoicesDelete
	assert.False(t, HasPermission(RoleSecretaire, InvoicesDelete))
	assert.Empty(t, Permissions(RoleUnknown))
}

func TestRole_text(t *testing.T) {
	for _, r := range Roles {
		parsed, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	_, err := ParseRole("directeur")
	assert.ErrorIs(t, err, ErrUnknownRole)

	var payload struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"comptable"}`), &payload))
	assert.Equal(t, RoleComptable, payload.Role)
	assert.Error(t, json.Unmarshal([]byte(`{"role":"root"}`), &payload))
}

func TestRole_sql(t *testing.T) {
	var r Role
	require.NoError(t, r.Scan([]byte("secretaire")))
	assert.Equal(t, RoleSecretaire, r)

	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, "secretaire", v)

	_, err = RoleUnknown.Value()
	assert.Error(t, err)
	assert.Error(t, r.Scan(12))
}
