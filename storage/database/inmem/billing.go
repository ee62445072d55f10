package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/tenant"
)

type billingRepository struct {
	db *DB
}

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db}
}

var (
	feeTypeComparators = comparators[billing.FeeType]{
		"name":       func(a, b billing.FeeType) int { return strings.Compare(a.Name, b.Name) },
		"amount":     func(a, b billing.FeeType) int { return compareInt64(a.Amount, b.Amount) },
		"created_at": func(a, b billing.FeeType) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
	invoiceComparators = comparators[billing.Invoice]{
		"number":     func(a, b billing.Invoice) int { return strings.Compare(a.Number, b.Number) },
		"issue_date": func(a, b billing.Invoice) int { return a.IssueDate.Compare(b.IssueDate) },
		"total":      func(a, b billing.Invoice) int { return compareInt64(a.Total, b.Total) },
		"created_at": func(a, b billing.Invoice) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}
)

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Fee types

func (repo *billingRepository) CreateFeeType(_ context.Context, scope tenant.Scope, ft billing.FeeType) (billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return billing.FeeType{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	ft.TenantID = scope.TenantID()
	repo.db.feeTypes[ft.ID] = &ft
	return ft, nil
}

func (repo *billingRepository) GetFeeType(_ context.Context, scope tenant.Scope, id string) (billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return billing.FeeType{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ft, ok := repo.db.feeTypes[id]; ok && ft.TenantID == scope.TenantID() {
		return *ft, nil
	}
	return billing.FeeType{}, billing.ErrFeeTypeNotFound
}

func (repo *billingRepository) QueryFeeTypes(_ context.Context, scope tenant.Scope, ordering []core.DBOrdering) ([]billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	feeTypes := make([]billing.FeeType, 0)
	for _, ft := range repo.db.feeTypes {
		if ft.TenantID == scope.TenantID() {
			feeTypes = append(feeTypes, *ft)
		}
	}
	sortRows(feeTypes, ordering, feeTypeComparators)
	return feeTypes, nil
}

func (repo *billingRepository) UpdateFeeType(_ context.Context, scope tenant.Scope, ft billing.FeeType) (billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return billing.FeeType{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.feeTypes[ft.ID]
	if !ok || stored.TenantID != scope.TenantID() {
		return billing.FeeType{}, billing.ErrFeeTypeNotFound
	}
	ft.TenantID = stored.TenantID
	ft.CreatedAt = stored.CreatedAt
	repo.db.feeTypes[ft.ID] = &ft
	return ft, nil
}

func (repo *billingRepository) DeleteFeeType(_ context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	if ft, ok := repo.db.feeTypes[id]; !ok || ft.TenantID != scope.TenantID() {
		return billing.ErrFeeTypeNotFound
	}
	for _, inv := range repo.db.invoices {
		for i := range inv.Lines {
			if inv.Lines[i].FeeTypeID.String == id {
				inv.Lines[i].FeeTypeID = null.String{}
			}
		}
	}
	delete(repo.db.feeTypes, id)
	return nil
}

// Invoices

// paid sums the payments of an invoice. The caller holds the lock.
func (repo *billingRepository) paid(invoiceID string) int64 {
	var sum int64
	for _, p := range repo.db.payments {
		if p.InvoiceID == invoiceID {
			sum += p.Amount
		}
	}
	return sum
}

func (repo *billingRepository) load(inv *billing.Invoice, withLines bool) billing.Invoice {
	loaded := *inv
	loaded.AmountPaid = repo.paid(inv.ID)
	loaded.Lines = nil
	if withLines {
		loaded.Lines = append(make([]billing.InvoiceLine, 0, len(inv.Lines)), inv.Lines...)
	}
	return loaded
}

func storedLines(inv billing.Invoice) []billing.InvoiceLine {
	lines := append(make([]billing.InvoiceLine, 0, len(inv.Lines)), inv.Lines...)
	for i := range lines {
		lines[i].InvoiceID = inv.ID
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Position < lines[j].Position })
	return lines
}

func (repo *billingRepository) CreateInvoice(_ context.Context, scope tenant.Scope, inv billing.Invoice) (billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return billing.Invoice{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	inv.TenantID = scope.TenantID()
	stored := inv
	stored.Lines = storedLines(inv)
	repo.db.invoices[inv.ID] = &stored
	return inv, nil
}

func (repo *billingRepository) GetInvoice(_ context.Context, scope tenant.Scope, id string) (billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return billing.Invoice{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if inv, ok := repo.db.invoices[id]; ok && inv.TenantID == scope.TenantID() {
		return repo.load(inv, true), nil
	}
	return billing.Invoice{}, billing.ErrInvoiceNotFound
}

// LockInvoice only checks the invoice exists: transactions already run one at a time.
func (repo *billingRepository) LockInvoice(ctx context.Context, scope tenant.Scope, id string) error {
	_, err := repo.GetInvoice(ctx, scope, id)
	return err
}

func (repo *billingRepository) QueryInvoices(_ context.Context, scope tenant.Scope, filter billing.InvoiceFilter, ordering []core.DBOrdering) ([]billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	from, to := filter.FromDate(), filter.ToDate()
	invoices := make([]billing.Invoice, 0)
	for _, inv := range repo.db.invoices {
		if inv.TenantID != scope.TenantID() {
			continue
		}
		if filter.StudentID != "" && inv.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !repo.invoiceMatches(inv, filter.Search) {
			continue
		}
		if !from.IsZero() && inv.IssueDate.Before(from) {
			continue
		}
		if !to.IsZero() && inv.IssueDate.After(to) {
			continue
		}
		invoices = append(invoices, repo.load(inv, false))
	}
	sortRows(invoices, ordering, invoiceComparators)
	return invoices, nil
}

func (repo *billingRepository) invoiceMatches(inv *billing.Invoice, search string) bool {
	if matches(search, inv.Number) {
		return true
	}
	s, ok := repo.db.students[inv.StudentID]
	return ok && matches(search, s.FirstName, s.LastName, s.Matricule)
}

func (repo *billingRepository) UpdateInvoice(_ context.Context, scope tenant.Scope, inv billing.Invoice) (billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return billing.Invoice{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.invoices[inv.ID]
	if !ok || stored.TenantID != scope.TenantID() {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	stored.StudentID = inv.StudentID
	stored.IssueDate = inv.IssueDate
	stored.DueDate = inv.DueDate
	stored.Status = inv.Status
	stored.Notes = inv.Notes
	stored.Total = inv.Total
	stored.UpdatedAt = inv.UpdatedAt
	stored.Lines = storedLines(inv)
	inv.TenantID = stored.TenantID
	return inv, nil
}

func (repo *billingRepository) SetInvoiceStatus(_ context.Context, scope tenant.Scope, id string, status billing.InvoiceStatus, at time.Time) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	inv, ok := repo.db.invoices[id]
	if !ok || inv.TenantID != scope.TenantID() {
		return billing.ErrInvoiceNotFound
	}
	inv.Status = status
	inv.UpdatedAt = at
	return nil
}

func (repo *billingRepository) DeleteInvoice(_ context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	if inv, ok := repo.db.invoices[id]; !ok || inv.TenantID != scope.TenantID() {
		return billing.ErrInvoiceNotFound
	}
	for pid, p := range repo.db.payments {
		if p.InvoiceID == id {
			delete(repo.db.payments, pid)
		}
	}
	delete(repo.db.invoices, id)
	return nil
}

// Payments

func (repo *billingRepository) CreatePayment(_ context.Context, scope tenant.Scope, p billing.Payment) (billing.Payment, error) {
	if err := scope.Check(); err != nil {
		return billing.Payment{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	p.TenantID = scope.TenantID()
	repo.db.payments[p.ID] = &p
	return p, nil
}

func (repo *billingRepository) GetPayment(_ context.Context, scope tenant.Scope, id string) (billing.Payment, error) {
	if err := scope.Check(); err != nil {
		return billing.Payment{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.payments[id]; ok && p.TenantID == scope.TenantID() {
		return *p, nil
	}
	return billing.Payment{}, billing.ErrPaymentNotFound
}

func (repo *billingRepository) QueryPayments(_ context.Context, scope tenant.Scope, filter billing.PaymentFilter) ([]billing.Payment, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	payments := make([]billing.Payment, 0)
	for _, p := range repo.db.payments {
		if p.TenantID != scope.TenantID() {
			continue
		}
		if filter.InvoiceID != "" && p.InvoiceID != filter.InvoiceID {
			continue
		}
		if filter.Method != "" && p.Method != filter.Method {
			continue
		}
		payments = append(payments, *p)
	}
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].PaidAt.Equal(payments[j].PaidAt) {
			return payments[i].PaidAt.After(payments[j].PaidAt)
		}
		return payments[i].Number > payments[j].Number
	})
	if filter.Limit > 0 && len(payments) > filter.Limit {
		payments = payments[:filter.Limit]
	}
	return payments, nil
}

func (repo *billingRepository) DeletePayment(_ context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	if p, ok := repo.db.payments[id]; !ok || p.TenantID != scope.TenantID() {
		return billing.ErrPaymentNotFound
	}
	delete(repo.db.payments, id)
	return nil
}

func (repo *billingRepository) SumPayments(_ context.Context, scope tenant.Scope, invoiceID string) (int64, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	var sum int64
	for _, p := range repo.db.payments {
		if p.TenantID == scope.TenantID() && p.InvoiceID == invoiceID {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (repo *billingRepository) NextSequence(_ context.Context, scope tenant.Scope, kind string, year int) (int, error) {
	return repo.db.nextSequence(scope, kind, year)
}
