// Package report builds the role-based dashboards and the spreadsheet exports of a school.
package report

import (
	"context"

	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
)

const recentPayments = 5

type (
	StudentStats struct {
		Students       int `json:"students" db:"students"`
		ActiveStudents int `json:"active_students" db:"active_students"`
		Classes        int `json:"classes" db:"classes"`
	}

	StatusCount struct {
		Status billing.InvoiceStatus `json:"status" db:"status"`
		Count  int                   `json:"count" db:"count"`
		Total  int64                 `json:"total" db:"total"`
	}

	FinanceStats struct {
		Invoiced       int64             `json:"invoiced" db:"invoiced"`
		Collected      int64             `json:"collected" db:"collected"`
		Outstanding    int64             `json:"outstanding" db:"-"`
		ByStatus       []StatusCount     `json:"by_status" db:"-"`
		RecentPayments []billing.Payment `json:"recent_payments" db:"-"`
	}

	// Dashboard holds the sections the caller's role may see; the others are left out.
	Dashboard struct {
		Role     authz.Role    `json:"role"`
		Students *StudentStats `json:"students,omitempty"`
		Finance  *FinanceStats `json:"finance,omitempty"`
	}

	// Repository aggregates tenant scoped figures. Drafts are not counted as invoiced.
	Repository interface {
		StudentStats(ctx context.Context, scope tenant.Scope) (StudentStats, error)
		FinanceStats(ctx context.Context, scope tenant.Scope) (FinanceStats, error)
		InvoicesByStatus(ctx context.Context, scope tenant.Scope) ([]StatusCount, error)
	}

	Invoices interface {
		QueryInvoices(ctx context.Context, scope tenant.Scope, filter billing.InvoiceFilter, ordering []core.DBOrdering) ([]billing.Invoice, error)
		QueryPayments(ctx context.Context, scope tenant.Scope, filter billing.PaymentFilter) ([]billing.Payment, error)
	}

	Students interface {
		QueryStudents(ctx context.Context, scope tenant.Scope, filter school.StudentFilter, ordering []core.DBOrdering) ([]school.Student, error)
	}

	Service struct {
		repo     Repository
		invoices Invoices
		students Students
	}
)

func NewService(repo Repository, invoices Invoices, students Students) *Service {
	return &Service{repo: repo, invoices: invoices, students: students}
}

// Dashboard: admins see everything, accountants the finance figures, secretaries the student counts.
func (svc *Service) Dashboard(ctx context.Context, ac access.Context) (Dashboard, error) {
	scope, err := ac.Require(authz.DashboardView)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{Role: ac.Role}

	if ac.Can(authz.StudentsView) {
		stats, err := svc.repo.StudentStats(ctx, scope)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "getting student stats")
		}
		d.Students = &stats
	}

	if ac.Can(authz.InvoicesView) {
		stats, err := svc.repo.FinanceStats(ctx, scope)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "getting finance stats")
		}
		stats.Outstanding = stats.Invoiced - stats.Collected
		if stats.ByStatus, err = svc.repo.InvoicesByStatus(ctx, scope); err != nil {
			return Dashboard{}, errors.Wrap(err, "counting invoices")
		}
		stats.RecentPayments = []billing.Payment{}
		if ac.Can(authz.PaymentsView) {
			if stats.RecentPayments, err = svc.invoices.QueryPayments(ctx, scope, billing.PaymentFilter{Limit: recentPayments}); err != nil {
				return Dashboard{}, errors.Wrap(err, "getting recent payments")
			}
		}
		d.Finance = &stats
	}
	return d, nil
}
