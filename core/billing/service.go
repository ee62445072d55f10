// Package billing keeps the fee catalog, the invoices and the payments of a tenant.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
)

const (
	invoiceKind = "invoice"
	receiptKind = "receipt"
)

var (
	ErrFeeTypeNotFound      = core.NewNotFoundError("fee type not found")
	ErrInvoiceNotFound      = core.NewNotFoundError("invoice not found")
	ErrPaymentNotFound      = core.NewNotFoundError("payment not found")
	ErrInvoiceHasPayments   = errors.New("this invoice already has payments")
	ErrInvoiceDraft         = errors.New("a draft invoice cannot receive payments")
	ErrAmountExceedsBalance = errors.New("the amount exceeds the balance of the invoice")
)

var (
	feeTypeOrdering = []string{"name", "amount", "created_at"}
	invoiceOrdering = []string{"number", "issue_date", "total", "created_at"}
)

type (
	// Repository methods are all tenant scoped.
	Repository interface {
		CreateFeeType(ctx context.Context, scope tenant.Scope, ft FeeType) (FeeType, error)
		GetFeeType(ctx context.Context, scope tenant.Scope, id string) (FeeType, error)
		QueryFeeTypes(ctx context.Context, scope tenant.Scope, ordering []core.DBOrdering) ([]FeeType, error)
		UpdateFeeType(ctx context.Context, scope tenant.Scope, ft FeeType) (FeeType, error)
		DeleteFeeType(ctx context.Context, scope tenant.Scope, id string) error

		// CreateInvoice inserts the invoice with its lines.
		CreateInvoice(ctx context.Context, scope tenant.Scope, inv Invoice) (Invoice, error)
		// GetInvoice returns the invoice with its ordered lines and the amount paid.
		GetInvoice(ctx context.Context, scope tenant.Scope, id string) (Invoice, error)
		// LockInvoice serializes payments of an invoice for the current transaction.
		LockInvoice(ctx context.Context, scope tenant.Scope, id string) error
		QueryInvoices(ctx context.Context, scope tenant.Scope, filter InvoiceFilter, ordering []core.DBOrdering) ([]Invoice, error)
		// UpdateInvoice replaces the invoice fields and its lines.
		UpdateInvoice(ctx context.Context, scope tenant.Scope, inv Invoice) (Invoice, error)
		SetInvoiceStatus(ctx context.Context, scope tenant.Scope, id string, status InvoiceStatus, at time.Time) error
		DeleteInvoice(ctx context.Context, scope tenant.Scope, id string) error

		CreatePayment(ctx context.Context, scope tenant.Scope, p Payment) (Payment, error)
		GetPayment(ctx context.Context, scope tenant.Scope, id string) (Payment, error)
		QueryPayments(ctx context.Context, scope tenant.Scope, filter PaymentFilter) ([]Payment, error)
		DeletePayment(ctx context.Context, scope tenant.Scope, id string) error
		SumPayments(ctx context.Context, scope tenant.Scope, invoiceID string) (int64, error)

		NextSequence(ctx context.Context, scope tenant.Scope, kind string, year int) (int, error)
	}

	// Students is the part of the school records billing reads.
	Students interface {
		GetStudent(ctx context.Context, scope tenant.Scope, id string) (school.Student, error)
	}

	Service struct {
		repo     Repository
		students Students
		tx       core.Transactor
		validate *validator.Validate
	}
)

func NewService(repo Repository, students Students, tx core.Transactor, validate *validator.Validate) *Service {
	return &Service{repo: repo, students: students, tx: tx, validate: validate}
}

// DerivedStatus is the status of an invoice once paid has been collected on it.
func DerivedStatus(current InvoiceStatus, total, paid int64) InvoiceStatus {
	switch {
	case paid <= 0:
		if current == InvoicePaid || current == InvoicePartial {
			return InvoiceSent
		}
		return current
	case paid >= total:
		return InvoicePaid
	default:
		return InvoicePartial
	}
}

func sequenceNumber(prefix string, year, n int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, n)
}

func parseDate(field, value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, core.NewFieldError(field, "invalid date")
	}
	return d, nil
}

// Fee types

func (svc *Service) ListFeeTypes(ctx context.Context, ac access.Context, ordering []core.DBOrdering) ([]FeeType, error) {
	scope, err := ac.Require(authz.FeesView)
	if err != nil {
		return nil, err
	}
	ordering = core.FilterOrdering(ordering, feeTypeOrdering...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	return svc.repo.QueryFeeTypes(ctx, scope, ordering)
}

func (svc *Service) GetFeeType(ctx context.Context, ac access.Context, id string) (FeeType, error) {
	scope, err := ac.Require(authz.FeesView)
	if err != nil {
		return FeeType{}, err
	}
	return svc.repo.GetFeeType(ctx, scope, id)
}

func (svc *Service) CreateFeeType(ctx context.Context, ac access.Context, data FeeTypeInput) (FeeType, error) {
	scope, err := ac.Require(authz.FeesCreate)
	if err != nil {
		return FeeType{}, err
	}
	data.Clean()
	if err = svc.validate.Struct(data); err != nil {
		return FeeType{}, err
	}
	now := core.NowFunc()
	return svc.repo.CreateFeeType(ctx, scope, FeeType{
		ID:          uuid.New().String(),
		TenantID:    scope.TenantID(),
		Name:        data.Name,
		Description: data.Description,
		Amount:      data.Amount,
		Frequency:   data.Frequency,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) UpdateFeeType(ctx context.Context, ac access.Context, id string, data FeeTypeInput) (FeeType, error) {
	scope, err := ac.Require(authz.FeesEdit)
	if err != nil {
		return FeeType{}, err
	}
	data.Clean()
	if err = svc.validate.Struct(data); err != nil {
		return FeeType{}, err
	}
	ft, err := svc.repo.GetFeeType(ctx, scope, id)
	if err != nil {
		return FeeType{}, err
	}
	ft.Name = data.Name
	ft.Description = data.Description
	ft.Amount = data.Amount
	ft.Frequency = data.Frequency
	ft.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateFeeType(ctx, scope, ft)
}

func (svc *Service) DeleteFeeType(ctx context.Context, ac access.Context, id string) error {
	scope, err := ac.Require(authz.FeesDelete)
	if err != nil {
		return err
	}
	if _, err = svc.repo.GetFeeType(ctx, scope, id); err != nil {
		return err
	}
	return svc.repo.DeleteFeeType(ctx, scope, id)
}

// Invoices

func (svc *Service) ListInvoices(ctx context.Context, ac access.Context, filter InvoiceFilter, ordering []core.DBOrdering) ([]Invoice, error) {
	scope, err := ac.Require(authz.InvoicesView)
	if err != nil {
		return nil, err
	}
	if err = filter.Parse(); err != nil {
		return nil, err
	}
	ordering = core.FilterOrdering(ordering, invoiceOrdering...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "issue_date"}, {Field: "number"}}
	}
	return svc.repo.QueryInvoices(ctx, scope, filter, ordering)
}

func (svc *Service) GetInvoice(ctx context.Context, ac access.Context, id string) (Invoice, error) {
	scope, err := ac.Require(authz.InvoicesView)
	if err != nil {
		return Invoice{}, err
	}
	return svc.repo.GetInvoice(ctx, scope, id)
}

// build validates data and turns it into the fields and lines of inv.
// Referenced student and fee types must belong to the scoped tenant.
func (svc *Service) build(ctx context.Context, scope tenant.Scope, inv *Invoice, data InvoiceInput) error {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return err
	}

	if _, err := svc.students.GetStudent(ctx, scope, data.StudentID); err != nil {
		if errors.Cause(err) == school.ErrStudentNotFound {
			return core.NewFieldError("student_id", "unknown student")
		}
		return errors.Wrap(err, "getting student")
	}

	issue, err := parseDate("issue_date", data.IssueDate, core.NowFunc().Truncate(24*time.Hour))
	if err != nil {
		return err
	}
	inv.IssueDate = issue
	inv.DueDate = null.Time{}
	if data.DueDate != "" {
		due, err := parseDate("due_date", data.DueDate, time.Time{})
		if err != nil {
			return err
		}
		if due.Before(issue) {
			return core.NewFieldError("due_date", "the due date cannot precede the issue date")
		}
		inv.DueDate = null.TimeFrom(due)
	}

	lines := make([]InvoiceLine, len(data.Lines))
	for i, l := range data.Lines {
		line := InvoiceLine{
			ID:          uuid.New().String(),
			InvoiceID:   inv.ID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Position:    i + 1,
		}
		if l.Total != nil {
			line.Total = null.Int64From(*l.Total)
		}
		if l.FeeTypeID != "" {
			if _, err := svc.repo.GetFeeType(ctx, scope, l.FeeTypeID); err != nil {
				if errors.Cause(err) == ErrFeeTypeNotFound {
					return core.NewFieldError(fmt.Sprintf("lines[%d].fee_type_id", i), "unknown fee type")
				}
				return errors.Wrap(err, "getting fee type")
			}
			line.FeeTypeID = null.StringFrom(l.FeeTypeID)
		}
		lines[i] = line
	}

	total, err := sumLines(lines)
	if err != nil {
		return err
	}

	inv.StudentID = data.StudentID
	inv.Notes = data.Notes
	inv.Lines = lines
	inv.Total = total
	return nil
}

// sumLines is Total refusing any line amount or invoice total above MaxAmount.
func sumLines(lines []InvoiceLine) (int64, error) {
	var total int64
	for i, l := range lines {
		amount := l.Amount()
		if amount > MaxAmount {
			return 0, core.NewFieldError(fmt.Sprintf("lines[%d].total", i), "line amount too large")
		}
		if total > MaxAmount-amount {
			return 0, core.NewFieldError("lines", "invoice total too large")
		}
		total += amount
	}
	return total, nil
}

// CreateInvoice numbers the invoice FAC-YYYY-NNNN in the sequence of its tenant.
func (svc *Service) CreateInvoice(ctx context.Context, ac access.Context, data InvoiceInput) (Invoice, error) {
	scope, err := ac.Require(authz.InvoicesCreate)
	if err != nil {
		return Invoice{}, err
	}

	now := core.NowFunc()
	inv := Invoice{
		ID:        uuid.New().String(),
		TenantID:  scope.TenantID(),
		Status:    InvoiceDraft,
		CreatedBy: ac.ActorID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if data.Status != "" {
		inv.Status = data.Status
	}
	if err = svc.build(ctx, scope, &inv, data); err != nil {
		return Invoice{}, err
	}

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		year := inv.IssueDate.Year()
		n, err := svc.repo.NextSequence(ctx, scope, invoiceKind, year)
		if err != nil {
			return errors.Wrap(err, "numbering invoice")
		}
		inv.Number = sequenceNumber("FAC", year, n)
		inv, err = svc.repo.CreateInvoice(ctx, scope, inv)
		return errors.Wrap(err, "creating invoice")
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// UpdateInvoice replaces the content of an invoice that has no payment yet.
func (svc *Service) UpdateInvoice(ctx context.Context, ac access.Context, id string, data InvoiceInput) (Invoice, error) {
	scope, err := ac.Require(authz.InvoicesEdit)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := svc.repo.GetInvoice(ctx, scope, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.AmountPaid > 0 {
		return Invoice{}, ErrInvoiceHasPayments
	}
	if err = svc.build(ctx, scope, &inv, data); err != nil {
		return Invoice{}, err
	}
	if data.Status != "" {
		inv.Status = data.Status
	}
	inv.UpdatedAt = core.NowFunc()

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err = svc.repo.UpdateInvoice(ctx, scope, inv)
		return err
	})
	if err != nil {
		return Invoice{}, errors.Wrap(err, "updating invoice")
	}
	return inv, nil
}

// SetInvoiceStatus changes the status by hand. Paid and partial statuses follow the payments only.
func (svc *Service) SetInvoiceStatus(ctx context.Context, ac access.Context, id string, change InvoiceStatusChange) (Invoice, error) {
	scope, err := ac.Require(authz.InvoicesEdit)
	if err != nil {
		return Invoice{}, err
	}
	if err = svc.validate.Struct(change); err != nil {
		return Invoice{}, err
	}
	inv, err := svc.repo.GetInvoice(ctx, scope, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.AmountPaid > 0 {
		return Invoice{}, ErrInvoiceHasPayments
	}

	now := core.NowFunc()
	if err = svc.repo.SetInvoiceStatus(ctx, scope, id, change.Status, now); err != nil {
		return Invoice{}, errors.Wrap(err, "setting invoice status")
	}
	inv.Status = change.Status
	inv.UpdatedAt = now
	return inv, nil
}

func (svc *Service) DeleteInvoice(ctx context.Context, ac access.Context, id string) error {
	scope, err := ac.Require(authz.InvoicesDelete)
	if err != nil {
		return err
	}
	inv, err := svc.repo.GetInvoice(ctx, scope, id)
	if err != nil {
		return err
	}
	if inv.AmountPaid > 0 {
		return ErrInvoiceHasPayments
	}
	return svc.repo.DeleteInvoice(ctx, scope, id)
}

// Payments

func (svc *Service) ListPayments(ctx context.Context, ac access.Context, filter PaymentFilter) ([]Payment, error) {
	scope, err := ac.Require(authz.PaymentsView)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, scope, filter)
}

func (svc *Service) GetPayment(ctx context.Context, ac access.Context, id string) (Payment, error) {
	scope, err := ac.Require(authz.PaymentsView)
	if err != nil {
		return Payment{}, err
	}
	return svc.repo.GetPayment(ctx, scope, id)
}

// refreshStatus recomputes the status of an invoice from its payments.
func (svc *Service) refreshStatus(ctx context.Context, scope tenant.Scope, inv Invoice, now time.Time) (Invoice, error) {
	paid, err := svc.repo.SumPayments(ctx, scope, inv.ID)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "summing payments")
	}
	inv.AmountPaid = paid
	if status := DerivedStatus(inv.Status, inv.Total, paid); status != inv.Status {
		if err = svc.repo.SetInvoiceStatus(ctx, scope, inv.ID, status, now); err != nil {
			return Invoice{}, errors.Wrap(err, "setting invoice status")
		}
		inv.Status = status
		inv.UpdatedAt = now
	}
	return inv, nil
}

// RecordPayment collects an amount on an invoice: 0 < amount <= balance. The receipt is numbered
// REC-YYYY-NNNN and the invoice status follows.
func (svc *Service) RecordPayment(ctx context.Context, ac access.Context, data PaymentInput) (Payment, Invoice, error) {
	scope, err := ac.Require(authz.PaymentsCreate)
	if err != nil {
		return Payment{}, Invoice{}, err
	}
	data.Clean()
	if err = svc.validate.Struct(data); err != nil {
		return Payment{}, Invoice{}, err
	}
	now := core.NowFunc()
	paidAt, err := parseDate("paid_at", data.PaidAt, now)
	if err != nil {
		return Payment{}, Invoice{}, err
	}

	var (
		p   Payment
		inv Invoice
	)
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.LockInvoice(ctx, scope, data.InvoiceID); err != nil {
			return err
		}
		inv, err = svc.repo.GetInvoice(ctx, scope, data.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceDraft {
			return ErrInvoiceDraft
		}
		if data.Amount > inv.Balance() {
			return core.NewValidationError(ErrAmountExceedsBalance, core.FieldError{Field: "amount", Error: ErrAmountExceedsBalance.Error()})
		}

		n, err := svc.repo.NextSequence(ctx, scope, receiptKind, paidAt.Year())
		if err != nil {
			return errors.Wrap(err, "numbering receipt")
		}
		p, err = svc.repo.CreatePayment(ctx, scope, Payment{
			ID:         uuid.New().String(),
			TenantID:   scope.TenantID(),
			InvoiceID:  inv.ID,
			Number:     sequenceNumber("REC", paidAt.Year(), n),
			Amount:     data.Amount,
			PaidAt:     paidAt,
			Method:     data.Method,
			Reference:  data.Reference,
			Notes:      data.Notes,
			RecordedBy: ac.ActorID(),
			CreatedAt:  now,
		})
		if err != nil {
			return errors.Wrap(err, "creating payment")
		}
		inv, err = svc.refreshStatus(ctx, scope, inv, now)
		return err
	})
	if err != nil {
		return Payment{}, Invoice{}, err
	}
	return p, inv, nil
}

// DeletePayment removes a payment and recomputes the status of its invoice.
func (svc *Service) DeletePayment(ctx context.Context, ac access.Context, id string) (Invoice, error) {
	scope, err := ac.Require(authz.PaymentsDelete)
	if err != nil {
		return Invoice{}, err
	}

	var inv Invoice
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := svc.repo.GetPayment(ctx, scope, id)
		if err != nil {
			return err
		}
		if err = svc.repo.LockInvoice(ctx, scope, p.InvoiceID); err != nil {
			return err
		}
		if err = svc.repo.DeletePayment(ctx, scope, id); err != nil {
			return errors.Wrap(err, "deleting payment")
		}
		if inv, err = svc.repo.GetInvoice(ctx, scope, p.InvoiceID); err != nil {
			return err
		}
		inv, err = svc.refreshStatus(ctx, scope, inv, core.NowFunc())
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}
