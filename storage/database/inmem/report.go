package inmemdb

import (
	"context"
	"sort"

	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/report"
	"github.com/samaecole/backend/core/tenant"
)

type reportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) report.Repository {
	return &reportRepository{db: db}
}

func (repo *reportRepository) StudentStats(_ context.Context, scope tenant.Scope) (report.StudentStats, error) {
	if err := scope.Check(); err != nil {
		return report.StudentStats{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stats report.StudentStats
	for _, s := range repo.db.students {
		if s.TenantID == scope.TenantID() {
			stats.Students++
			if s.IsActive {
				stats.ActiveStudents++
			}
		}
	}
	for _, c := range repo.db.classes {
		if c.TenantID == scope.TenantID() {
			stats.Classes++
		}
	}
	return stats, nil
}

func (repo *reportRepository) FinanceStats(_ context.Context, scope tenant.Scope) (report.FinanceStats, error) {
	if err := scope.Check(); err != nil {
		return report.FinanceStats{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stats report.FinanceStats
	for _, inv := range repo.db.invoices {
		if inv.TenantID == scope.TenantID() && inv.Status != billing.InvoiceDraft {
			stats.Invoiced += inv.Total
		}
	}
	for _, p := range repo.db.payments {
		if p.TenantID == scope.TenantID() {
			stats.Collected += p.Amount
		}
	}
	return stats, nil
}

func (repo *reportRepository) InvoicesByStatus(_ context.Context, scope tenant.Scope) ([]report.StatusCount, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	byStatus := make(map[billing.InvoiceStatus]*report.StatusCount)
	for _, inv := range repo.db.invoices {
		if inv.TenantID != scope.TenantID() {
			continue
		}
		sc, ok := byStatus[inv.Status]
		if !ok {
			sc = &report.StatusCount{Status: inv.Status}
			byStatus[inv.Status] = sc
		}
		sc.Count++
		sc.Total += inv.Total
	}
	counts := make([]report.StatusCount, 0, len(byStatus))
	for _, sc := range byStatus {
		counts = append(counts, *sc)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Status < counts[j].Status })
	return counts, nil
}
