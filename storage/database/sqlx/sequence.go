package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/tenant"
)

// nextSequence atomically increments the (tenant, kind, year) counter, starting at 1.
func nextSequence(ctx context.Context, exec sqlx.ExtContext, scope tenant.Scope, kind string, year int) (int, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	var n int
	err := sqlx.GetContext(ctx, exec, &n, `INSERT INTO document_sequences (tenant_id, kind, year, value) VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, kind, year) DO UPDATE SET value = document_sequences.value + 1
		RETURNING value`, scope.TenantID(), kind, year)
	return n, errors.Wrap(err, "incrementing sequence")
}
