// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
// Every tenant scoped statement filters on tenant_id.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/tenant"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type repository struct {
	db *sqlx.DB
}

// getExec returns the transaction carried by ctx, the database otherwise.
func (repo repository) getExec(ctx context.Context) sqlx.ExtContext {
	if tx, ok := core.TxFromContext(ctx).(*sqlx.Tx); ok {
		return tx
	}
	return repo.db
}

// trapNoRowsErr maps "no rows" to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == foreignKeyViolation
}

// checkAffected returns notFound when res touched no row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "getting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func orderBy(ordering []core.DBOrdering, prefix string) string {
	if len(ordering) == 0 {
		return ""
	}
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		list = append(list, prefix+ord.String())
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

// where accumulates the conditions and positional arguments of a query.
type where struct {
	conds []string
	args  []interface{}
}

func scoped(scope tenant.Scope, column string) *where {
	w := &where{}
	w.add(column+" = ?", scope.TenantID())
	return w
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(search) + "%"
}

func rebind(exec sqlx.ExtContext, query string) string {
	return exec.Rebind(query)
}
