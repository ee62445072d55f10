package sqlxrepos

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/tenant"
	"github.com/samaecole/backend/core/user"
	inmemdb "github.com/samaecole/backend/storage/database/inmem"
)

const testTenantID = "7c1e3c1a-59a4-4a0b-9d4f-8f2d6a0c2b11"

var testScope = resolveScope(testTenantID)

type noSuperAdmins struct{}

func (noSuperAdmins) IsSuperAdmin(context.Context, string) (bool, error) { return false, nil }

// resolveScope obtains the scope of a member of tenantID the way requests do.
func resolveScope(tenantID string) tenant.Scope {
	ctx := context.Background()
	db := inmemdb.Open()
	tenants := inmemdb.NewTenantRepository(db)
	users := inmemdb.NewUserRepository(db)

	if _, err := tenants.CreateTenant(ctx, tenant.Tenant{ID: tenantID, Name: "Test", Status: tenant.StatusActive}); err != nil {
		panic(err)
	}
	if _, err := users.CreateUser(ctx, user.User{ID: "u1", IdentityID: "i1", TenantID: tenantID, Role: authz.RoleAdmin, IsActive: true}); err != nil {
		panic(err)
	}
	ac, err := access.NewResolver(noSuperAdmins{}, users, tenants).Resolve(ctx, identity.Identity{ID: "i1"})
	if err != nil {
		panic(err)
	}
	scope, err := ac.Scope()
	if err != nil {
		panic(err)
	}
	return scope
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

// literal matches a query fragment as is.
func literal(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func TestPqCodes(t *testing.T) {
	unique := errors.Wrap(&pq.Error{Code: uniqueViolation}, "inserting")
	fk := &pq.Error{Code: foreignKeyViolation}

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isForeignKeyViolation(unique))
	assert.True(t, isForeignKeyViolation(fk))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestWhere(t *testing.T) {
	w := scoped(testScope, "tenant_id")
	w.add("(name ILIKE ? OR level ILIKE ?)", "%a%", "%a%")
	w.add("academic_year = ?", "2025-2026")

	db, _ := newMock(t)
	q := rebind(db, "SELECT id FROM classes"+w.String())
	assert.Equal(t, "SELECT id FROM classes WHERE tenant_id = $1 AND (name ILIKE $2 OR level ILIKE $3) AND academic_year = $4", q)
	assert.Equal(t, []interface{}{testTenantID, "%a%", "%a%", "2025-2026"}, w.args)
	assert.Equal(t, "", (&where{}).String())
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, "", orderBy(nil, ""))
	ordering := []core.DBOrdering{{Field: "issue_date"}, {Field: "number", Ascending: true}}
	assert.Equal(t, " ORDER BY i.issue_date DESC, i.number ASC", orderBy(ordering, "i."))
}
