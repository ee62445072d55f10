package authz

type Permission string

const (
	StudentsView   Permission = "students.view"
	StudentsCreate Permission = "students.create"
	StudentsEdit   Permission = "students.edit"
	StudentsDelete Permission = "students.delete"

	ClassesView   Permission = "classes.view"
	ClassesCreate Permission = "classes.create"
	ClassesEdit   Permission = "classes.edit"
	ClassesDelete Permission = "classes.delete"

	FeesView   Permission = "fees.view"
	FeesCreate Permission = "fees.create"
	FeesEdit   Permission = "fees.edit"
	FeesDelete Permission = "fees.delete"

	InvoicesView   Permission = "invoices.view"
	InvoicesCreate Permission = "invoices.create"
	InvoicesEdit   Permission = "invoices.edit"
	InvoicesDelete Permission = "invoices.delete"

	PaymentsView   Permission = "payments.view"
	PaymentsCreate Permission = "payments.create"
	PaymentsDelete Permission = "payments.delete"

	UsersView   Permission = "users.view"
	UsersInvite Permission = "users.invite"
	UsersEdit   Permission = "users.edit"
	UsersDelete Permission = "users.delete"

	SchoolEdit    Permission = "school.edit"
	DashboardView Permission = "dashboard.view"
	ReportsExport Permission = "reports.export"
)

// AllPermissions is what an admin is granted.
var AllPermissions = []Permission{
	StudentsView, StudentsCreate, StudentsEdit, StudentsDelete,
	ClassesView, ClassesCreate, ClassesEdit, ClassesDelete,
	FeesView, FeesCreate, FeesEdit, FeesDelete,
	InvoicesView, InvoicesCreate, InvoicesEdit, InvoicesDelete,
	PaymentsView, PaymentsCreate, PaymentsDelete,
	UsersView, UsersInvite, UsersEdit, UsersDelete,
	SchoolEdit, DashboardView, ReportsExport,
}

// rolePermissions holds one row per Role, in declaration order; admins short-circuit in HasPermission.
var rolePermissions = [...][]Permission{
	// RoleUnknown
	{},
	// RoleAdmin
	AllPermissions,
	// RoleSecretaire
	{
		StudentsView,
		ClassesView,
		FeesView,
		DashboardView,
	},
	// RoleComptable
	{
		InvoicesView, InvoicesCreate,
		PaymentsView, PaymentsCreate, PaymentsDelete,
		FeesView, FeesCreate, FeesEdit, FeesDelete,
		DashboardView,
	},
	// RoleProfesseur
	{},
}

// compile-time check: a role added without its row breaks the build
var _ = [1]struct{}{}[len(rolePermissions)-int(roleCount)]

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	if role == RoleAdmin {
		return true
	}
	if !role.Valid() {
		return false
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// HasRole reports whether role is one of roles.
func HasRole(role Role, roles ...Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the permissions granted to role.
func Permissions(role Role) []Permission {
	if !role.Valid() {
		return []Permission{}
	}
	perms := make([]Permission, len(rolePermissions[role]))
	copy(perms, rolePermissions[role])
	return perms
}

// Require returns ErrForbidden unless role grants perm.
func Require(role Role, perm Permission) error {
	if !HasPermission(role, perm) {
		return ErrForbidden
	}
	return nil
}
