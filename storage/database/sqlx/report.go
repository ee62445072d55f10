package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/report"
	"github.com/samaecole/backend/core/tenant"
)

type reportRepository struct {
	repository
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) report.Repository {
	return &reportRepository{repository{db: db}}
}

func (repo reportRepository) StudentStats(ctx context.Context, scope tenant.Scope) (report.StudentStats, error) {
	if err := scope.Check(); err != nil {
		return report.StudentStats{}, err
	}
	var stats report.StudentStats
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &stats, `SELECT
		(SELECT COUNT(*) FROM students WHERE tenant_id = $1) AS students,
		(SELECT COUNT(*) FROM students WHERE tenant_id = $1 AND is_active) AS active_students,
		(SELECT COUNT(*) FROM classes WHERE tenant_id = $1) AS classes`, scope.TenantID())
	return stats, errors.Wrap(err, "getting student stats")
}

func (repo reportRepository) FinanceStats(ctx context.Context, scope tenant.Scope) (report.FinanceStats, error) {
	if err := scope.Check(); err != nil {
		return report.FinanceStats{}, err
	}
	var stats report.FinanceStats
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &stats, `SELECT
		(SELECT COALESCE(SUM(total), 0) FROM invoices WHERE tenant_id = $1 AND status <> $2) AS invoiced,
		(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE tenant_id = $1) AS collected`,
		scope.TenantID(), billing.InvoiceDraft)
	return stats, errors.Wrap(err, "getting finance stats")
}

func (repo reportRepository) InvoicesByStatus(ctx context.Context, scope tenant.Scope) ([]report.StatusCount, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	counts := make([]report.StatusCount, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(ctx), &counts, `SELECT status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total
		FROM invoices WHERE tenant_id = $1 GROUP BY status ORDER BY status`, scope.TenantID())
	if err != nil {
		return nil, errors.Wrap(err, "counting invoices by status")
	}
	return counts, nil
}
