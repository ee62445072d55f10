package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/tenant"
)

type billingRepository struct {
	repository
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *sqlx.DB) billing.Repository {
	return &billingRepository{repository{db: db}}
}

const (
	feeTypeColumns = "id, tenant_id, name, description, amount, frequency, created_at, updated_at"
	invoiceColumns = `i.id, i.tenant_id, i.number, i.student_id, i.issue_date, i.due_date, i.status, i.notes, i.total,
		i.created_by, i.created_at, i.updated_at,
		COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0) AS amount_paid`
	lineColumns    = "id, tenant_id, invoice_id, fee_type_id, description, quantity, unit_price, total, position"
	paymentColumns = "id, tenant_id, invoice_id, number, amount, paid_at, method, reference, notes, recorded_by, created_at"
)

// Fee types

func (repo billingRepository) CreateFeeType(ctx context.Context, scope tenant.Scope, ft billing.FeeType) (billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return billing.FeeType{}, err
	}
	ft.TenantID = scope.TenantID()
	q := `INSERT INTO fee_types (` + feeTypeColumns + `)
		VALUES (:id, :tenant_id, :name, :description, :amount, :frequency, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, ft); err != nil {
		return billing.FeeType{}, errors.Wrap(err, "inserting fee type")
	}
	return ft, nil
}

func (repo billingRepository) GetFeeType(ctx context.Context, scope tenant.Scope, id string) (billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return billing.FeeType{}, err
	}
	var ft billing.FeeType
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &ft,
		`SELECT `+feeTypeColumns+` FROM fee_types WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return billing.FeeType{}, trapNoRowsErr(err, billing.ErrFeeTypeNotFound, "getting fee type")
	}
	return ft, nil
}

func (repo billingRepository) QueryFeeTypes(ctx context.Context, scope tenant.Scope, ordering []core.DBOrdering) ([]billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	feeTypes := make([]billing.FeeType, 0)
	q := `SELECT ` + feeTypeColumns + ` FROM fee_types WHERE tenant_id = $1` + orderBy(ordering, "")
	if err := sqlx.SelectContext(ctx, repo.getExec(ctx), &feeTypes, q, scope.TenantID()); err != nil {
		return nil, errors.Wrap(err, "querying fee types")
	}
	return feeTypes, nil
}

func (repo billingRepository) UpdateFeeType(ctx context.Context, scope tenant.Scope, ft billing.FeeType) (billing.FeeType, error) {
	if err := scope.Check(); err != nil {
		return billing.FeeType{}, err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx,
		`UPDATE fee_types SET name = $1, description = $2, amount = $3, frequency = $4, updated_at = $5
		WHERE tenant_id = $6 AND id = $7`,
		ft.Name, ft.Description, ft.Amount, ft.Frequency, ft.UpdatedAt, scope.TenantID(), ft.ID)
	if err != nil {
		return billing.FeeType{}, errors.Wrap(err, "updating fee type")
	}
	if err = checkAffected(res, billing.ErrFeeTypeNotFound); err != nil {
		return billing.FeeType{}, err
	}
	return ft, nil
}

func (repo billingRepository) DeleteFeeType(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx, `DELETE FROM fee_types WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return errors.Wrap(err, "deleting fee type")
	}
	return checkAffected(res, billing.ErrFeeTypeNotFound)
}

// Invoices

func (repo billingRepository) insertLines(ctx context.Context, exec sqlx.ExtContext, inv billing.Invoice) error {
	q := `INSERT INTO invoice_lines (` + lineColumns + `)
		VALUES (:id, :tenant_id, :invoice_id, :fee_type_id, :description, :quantity, :unit_price, :total, :position)`
	for _, l := range inv.Lines {
		l.TenantID = inv.TenantID
		l.InvoiceID = inv.ID
		if _, err := sqlx.NamedExecContext(ctx, exec, q, l); err != nil {
			return errors.Wrap(err, "inserting invoice line")
		}
	}
	return nil
}

func (repo billingRepository) CreateInvoice(ctx context.Context, scope tenant.Scope, inv billing.Invoice) (billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return billing.Invoice{}, err
	}
	inv.TenantID = scope.TenantID()
	exec := repo.getExec(ctx)
	q := `INSERT INTO invoices (id, tenant_id, number, student_id, issue_date, due_date, status, notes, total,
		created_by, created_at, updated_at)
		VALUES (:id, :tenant_id, :number, :student_id, :issue_date, :due_date, :status, :notes, :total,
		:created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, q, inv); err != nil {
		return billing.Invoice{}, errors.Wrap(err, "inserting invoice")
	}
	if err := repo.insertLines(ctx, exec, inv); err != nil {
		return billing.Invoice{}, err
	}
	return inv, nil
}

func (repo billingRepository) GetInvoice(ctx context.Context, scope tenant.Scope, id string) (billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return billing.Invoice{}, err
	}
	exec := repo.getExec(ctx)
	var inv billing.Invoice
	err := sqlx.GetContext(ctx, exec, &inv,
		`SELECT `+invoiceColumns+` FROM invoices i WHERE i.tenant_id = $1 AND i.id = $2`, scope.TenantID(), id)
	if err != nil {
		return billing.Invoice{}, trapNoRowsErr(err, billing.ErrInvoiceNotFound, "getting invoice")
	}
	inv.Lines = make([]billing.InvoiceLine, 0)
	err = sqlx.SelectContext(ctx, exec, &inv.Lines,
		`SELECT `+lineColumns+` FROM invoice_lines WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY position ASC`,
		scope.TenantID(), inv.ID)
	if err != nil {
		return billing.Invoice{}, errors.Wrap(err, "getting invoice lines")
	}
	return inv, nil
}

func (repo billingRepository) LockInvoice(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	var locked string
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &locked,
		`SELECT id FROM invoices WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, scope.TenantID(), id)
	if err != nil {
		return trapNoRowsErr(err, billing.ErrInvoiceNotFound, "locking invoice")
	}
	return nil
}

func (repo billingRepository) QueryInvoices(ctx context.Context, scope tenant.Scope, filter billing.InvoiceFilter, ordering []core.DBOrdering) ([]billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	w := scoped(scope, "i.tenant_id")
	if filter.StudentID != "" {
		w.add("i.student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		w.add("i.status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add(`(i.number ILIKE ? OR EXISTS (SELECT 1 FROM students s WHERE s.id = i.student_id
			AND (s.first_name ILIKE ? OR s.last_name ILIKE ? OR s.matricule ILIKE ?)))`,
			pattern, pattern, pattern, pattern)
	}
	if from := filter.FromDate(); !from.IsZero() {
		w.add("i.issue_date >= ?", from)
	}
	if to := filter.ToDate(); !to.IsZero() {
		w.add("i.issue_date <= ?", to)
	}
	exec := repo.getExec(ctx)
	invoices := make([]billing.Invoice, 0)
	q := rebind(exec, `SELECT `+invoiceColumns+` FROM invoices i`+w.String()+orderBy(ordering, "i."))
	if err := sqlx.SelectContext(ctx, exec, &invoices, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	return invoices, nil
}

func (repo billingRepository) UpdateInvoice(ctx context.Context, scope tenant.Scope, inv billing.Invoice) (billing.Invoice, error) {
	if err := scope.Check(); err != nil {
		return billing.Invoice{}, err
	}
	inv.TenantID = scope.TenantID()
	exec := repo.getExec(ctx)
	q := `UPDATE invoices SET student_id = :student_id, issue_date = :issue_date, due_date = :due_date,
		status = :status, notes = :notes, total = :total, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id`
	res, err := sqlx.NamedExecContext(ctx, exec, q, inv)
	if err != nil {
		return billing.Invoice{}, errors.Wrap(err, "updating invoice")
	}
	if err = checkAffected(res, billing.ErrInvoiceNotFound); err != nil {
		return billing.Invoice{}, err
	}
	if _, err = exec.ExecContext(ctx, `DELETE FROM invoice_lines WHERE tenant_id = $1 AND invoice_id = $2`,
		inv.TenantID, inv.ID); err != nil {
		return billing.Invoice{}, errors.Wrap(err, "deleting invoice lines")
	}
	if err = repo.insertLines(ctx, exec, inv); err != nil {
		return billing.Invoice{}, err
	}
	return inv, nil
}

func (repo billingRepository) SetInvoiceStatus(ctx context.Context, scope tenant.Scope, id string, status billing.InvoiceStatus, at time.Time) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx,
		`UPDATE invoices SET status = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4`,
		status, at, scope.TenantID(), id)
	if err != nil {
		return errors.Wrap(err, "setting invoice status")
	}
	return checkAffected(res, billing.ErrInvoiceNotFound)
}

func (repo billingRepository) DeleteInvoice(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx, `DELETE FROM invoices WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return errors.Wrap(err, "deleting invoice")
	}
	return checkAffected(res, billing.ErrInvoiceNotFound)
}

// Payments

func (repo billingRepository) CreatePayment(ctx context.Context, scope tenant.Scope, p billing.Payment) (billing.Payment, error) {
	if err := scope.Check(); err != nil {
		return billing.Payment{}, err
	}
	p.TenantID = scope.TenantID()
	q := `INSERT INTO payments (` + paymentColumns + `) VALUES (:id, :tenant_id, :invoice_id, :number, :amount,
		:paid_at, :method, :reference, :notes, :recorded_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(ctx), q, p); err != nil {
		return billing.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo billingRepository) GetPayment(ctx context.Context, scope tenant.Scope, id string) (billing.Payment, error) {
	if err := scope.Check(); err != nil {
		return billing.Payment{}, err
	}
	var p billing.Payment
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &p,
		`SELECT `+paymentColumns+` FROM payments WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return billing.Payment{}, trapNoRowsErr(err, billing.ErrPaymentNotFound, "getting payment")
	}
	return p, nil
}

func (repo billingRepository) QueryPayments(ctx context.Context, scope tenant.Scope, filter billing.PaymentFilter) ([]billing.Payment, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	w := scoped(scope, "tenant_id")
	if filter.InvoiceID != "" {
		w.add("invoice_id = ?", filter.InvoiceID)
	}
	if filter.Method != "" {
		w.add("method = ?", filter.Method)
	}
	q := `SELECT ` + paymentColumns + ` FROM payments` + w.String() + ` ORDER BY paid_at DESC, number DESC`
	args := w.args
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	exec := repo.getExec(ctx)
	payments := make([]billing.Payment, 0)
	if err := sqlx.SelectContext(ctx, exec, &payments, rebind(exec, q), args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return payments, nil
}

func (repo billingRepository) DeletePayment(ctx context.Context, scope tenant.Scope, id string) error {
	if err := scope.Check(); err != nil {
		return err
	}
	res, err := repo.getExec(ctx).ExecContext(ctx, `DELETE FROM payments WHERE tenant_id = $1 AND id = $2`, scope.TenantID(), id)
	if err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	return checkAffected(res, billing.ErrPaymentNotFound)
}

func (repo billingRepository) SumPayments(ctx context.Context, scope tenant.Scope, invoiceID string) (int64, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	var sum int64
	err := sqlx.GetContext(ctx, repo.getExec(ctx), &sum,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE tenant_id = $1 AND invoice_id = $2`, scope.TenantID(), invoiceID)
	return sum, errors.Wrap(err, "summing payments")
}

func (repo billingRepository) NextSequence(ctx context.Context, scope tenant.Scope, kind string, year int) (int, error) {
	return nextSequence(ctx, repo.getExec(ctx), scope, kind, year)
}
