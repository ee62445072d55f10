package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core/billing"
)

var invoiceRowColumns = []string{"id", "tenant_id", "number", "student_id", "issue_date", "due_date", "status", "notes",
	"total", "created_by", "created_at", "updated_at", "amount_paid"}

func TestGetInvoice(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)
	issued := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(literal("FROM invoices i WHERE i.tenant_id = $1 AND i.id = $2")).
		WithArgs(testTenantID, "inv1").
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns).
			AddRow("inv1", testTenantID, "FAC-2025-0001", "s1", issued, nil, "partielle", "", 13000, "u1", issued, issued, 5000))
	mock.ExpectQuery(literal("FROM invoice_lines WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY position ASC")).
		WithArgs(testTenantID, "inv1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "invoice_id", "fee_type_id", "description", "quantity",
			"unit_price", "total", "position"}).
			AddRow("l1", testTenantID, "inv1", "ft1", "Scolarité", 2, 5000, nil, 1).
			AddRow("l2", testTenantID, "inv1", nil, "Tenue", 1, 3000, nil, 2))

	inv, err := repo.GetInvoice(context.Background(), testScope, "inv1")
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePartial, inv.Status)
	assert.Equal(t, int64(5000), inv.AmountPaid)
	assert.Equal(t, int64(8000), inv.Balance())
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, inv.Total, billing.Total(inv.Lines))
	assert.False(t, inv.Lines[1].FeeTypeID.Valid)
	assert.Equal(t, testTenantID, inv.Lines[0].TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInvoiceNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)

	mock.ExpectQuery(literal("FROM invoices i WHERE")).WillReturnRows(sqlmock.NewRows(invoiceRowColumns))

	_, err := repo.GetInvoice(context.Background(), testScope, "inv1")
	assert.Equal(t, billing.ErrInvoiceNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvoiceInsertsLines(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)

	inv := billing.Invoice{
		ID:     "inv1",
		Number: "FAC-2025-0001",
		Status: billing.InvoiceDraft,
		Lines: []billing.InvoiceLine{
			{ID: "l1", Description: "Scolarité", Quantity: 2, UnitPrice: 5000, Position: 1},
			{ID: "l2", Description: "Tenue", Quantity: 1, UnitPrice: 3000, Total: null.Int64From(3000), Position: 2},
		},
	}
	inv.Total = billing.Total(inv.Lines)

	mock.ExpectExec(literal("INSERT INTO invoices")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(literal("INSERT INTO invoice_lines (id, tenant_id, invoice_id,")).
		WithArgs("l1", testTenantID, "inv1", sqlmock.AnyArg(), "Scolarité", int64(2), int64(5000), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(literal("INSERT INTO invoice_lines (id, tenant_id, invoice_id,")).
		WithArgs("l2", testTenantID, "inv1", sqlmock.AnyArg(), "Tenue", int64(1), int64(3000), sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.CreateInvoice(context.Background(), testScope, inv)
	require.NoError(t, err)
	assert.Equal(t, testTenantID, created.TenantID)
	assert.Equal(t, int64(13000), created.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInvoiceReplacesLines(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)

	inv := billing.Invoice{
		ID:    "inv1",
		Lines: []billing.InvoiceLine{{ID: "l3", Description: "Cantine", Quantity: 1, UnitPrice: 2000, Position: 1}},
	}

	mock.ExpectExec(literal("UPDATE invoices SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(literal("DELETE FROM invoice_lines WHERE tenant_id = $1 AND invoice_id = $2")).
		WithArgs(testTenantID, "inv1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(literal("INSERT INTO invoice_lines")).
		WithArgs("l3", testTenantID, "inv1", sqlmock.AnyArg(), "Cantine", int64(1), int64(2000), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.UpdateInvoice(context.Background(), testScope, inv)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryInvoicesFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)

	filter := billing.InvoiceFilter{Status: billing.InvoiceUnpaid, From: "2025-09-01", To: "2025-09-30"}
	require.NoError(t, filter.Parse())

	mock.ExpectQuery(literal("FROM invoices i WHERE i.tenant_id = $1 AND i.status = $2 AND i.issue_date >= $3 AND i.issue_date <= $4")).
		WithArgs(testTenantID, billing.InvoiceUnpaid, filter.FromDate(), filter.ToDate()).
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns))

	invoices, err := repo.QueryInvoices(context.Background(), testScope, filter, nil)
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.NotNil(t, invoices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockInvoice(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)

	mock.ExpectQuery(literal("SELECT id FROM invoices WHERE tenant_id = $1 AND id = $2 FOR UPDATE")).
		WithArgs(testTenantID, "inv1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inv1"))
	mock.ExpectQuery(literal("FOR UPDATE")).
		WithArgs(testTenantID, "other").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	require.NoError(t, repo.LockInvoice(context.Background(), testScope, "inv1"))
	assert.Equal(t, billing.ErrInvoiceNotFound, repo.LockInvoice(context.Background(), testScope, "other"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryPaymentsLimit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)
	paid := time.Date(2025, 10, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(literal("FROM payments WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY paid_at DESC, number DESC LIMIT $3")).
		WithArgs(testTenantID, "inv1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "invoice_id", "number", "amount", "paid_at", "method",
			"reference", "notes", "recorded_by", "created_at"}).
			AddRow("p1", testTenantID, "inv1", "REC-2025-0001", 5000, paid, "wave", "TX1", "", "u1", paid))

	payments, err := repo.QueryPayments(context.Background(), testScope, billing.PaymentFilter{InvoiceID: "inv1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.MethodWave, payments[0].Method)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumPayments(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBillingRepository(db)

	mock.ExpectQuery(literal("SELECT COALESCE(SUM(amount), 0) FROM payments WHERE tenant_id = $1 AND invoice_id = $2")).
		WithArgs(testTenantID, "inv1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(8000))

	sum, err := repo.SumPayments(context.Background(), testScope, "inv1")
	require.NoError(t, err)
	assert.Equal(t, int64(8000), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}
