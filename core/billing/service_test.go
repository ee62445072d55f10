package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/testutil"
)

var ctx = context.Background()

type fixture struct {
	app        *testutil.App
	admin      access.Context
	accountant access.Context
	student    school.Student
}

func setup(t *testing.T) fixture {
	app := testutil.NewApp(t)
	tn := app.CreateTenant(t, "Cours Privés Le Savoir")
	admin := app.Member(t, tn, "admin@savoir.sn", authz.RoleAdmin)
	s, err := app.School.CreateStudent(ctx, admin, school.StudentInput{FirstName: "Aminata", LastName: "Fall"})
	require.NoError(t, err)
	return fixture{
		app:        app,
		admin:      admin,
		accountant: app.Member(t, tn, "compta@savoir.sn", authz.RoleComptable),
		student:    s,
	}
}

func (f fixture) invoice(t *testing.T, status billing.InvoiceStatus, lines ...billing.LineInput) billing.Invoice {
	t.Helper()
	if len(lines) == 0 {
		lines = []billing.LineInput{
			{Description: "Scolarité octobre", Quantity: 2, UnitPrice: 5000},
			{Description: "Cantine", Quantity: 1, UnitPrice: 3000},
		}
	}
	inv, err := f.app.Billing.CreateInvoice(ctx, f.accountant, billing.InvoiceInput{
		StudentID: f.student.ID,
		IssueDate: "2024-10-01",
		DueDate:   "2024-10-15",
		Status:    status,
		Lines:     lines,
	})
	require.NoError(t, err)
	return inv
}

func (f fixture) pay(ac access.Context, invoiceID string, amount int64) (billing.Payment, billing.Invoice, error) {
	return f.app.Billing.RecordPayment(ctx, ac, billing.PaymentInput{
		InvoiceID: invoiceID,
		Amount:    amount,
		PaidAt:    "2024-10-05",
		Method:    billing.MethodWave,
	})
}

func TestDerivedStatus(t *testing.T) {
	tests := []struct {
		current     billing.InvoiceStatus
		total, paid int64
		want        billing.InvoiceStatus
	}{
		{billing.InvoiceSent, 13000, 0, billing.InvoiceSent},
		{billing.InvoiceUnpaid, 13000, 0, billing.InvoiceUnpaid},
		{billing.InvoicePartial, 13000, 0, billing.InvoiceSent},
		{billing.InvoicePaid, 13000, 0, billing.InvoiceSent},
		{billing.InvoiceSent, 13000, 5000, billing.InvoicePartial},
		{billing.InvoiceUnpaid, 13000, 5000, billing.InvoicePartial},
		{billing.InvoicePartial, 13000, 13000, billing.InvoicePaid},
		{billing.InvoicePaid, 13000, 8000, billing.InvoicePartial},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, billing.DerivedStatus(tc.current, tc.total, tc.paid), "%s %d/%d", tc.current, tc.paid, tc.total)
	}
}

func TestCreateInvoice(t *testing.T) {
	f := setup(t)

	inv := f.invoice(t, "")
	assert.Equal(t, "FAC-2024-0001", inv.Number)
	assert.Equal(t, billing.InvoiceDraft, inv.Status)
	assert.EqualValues(t, 13000, inv.Total)
	assert.EqualValues(t, 13000, inv.Balance())
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, 1, inv.Lines[0].Position)
	assert.EqualValues(t, 10000, inv.Lines[0].Amount())

	second := f.invoice(t, billing.InvoiceSent)
	assert.Equal(t, "FAC-2024-0002", second.Number)

	stored, err := f.app.Billing.GetInvoice(ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 13000, stored.Total)
	assert.Equal(t, "Cantine", stored.Lines[1].Description)
}

func TestCreateInvoiceExplicitLineTotal(t *testing.T) {
	f := setup(t)
	total := int64(7500)

	inv := f.invoice(t, billing.InvoiceSent,
		billing.LineInput{Description: "Reliquat 2023", Quantity: 1, UnitPrice: 0, Total: &total},
		billing.LineInput{Description: "Tenue", Quantity: 3, UnitPrice: 2500},
	)
	assert.EqualValues(t, 15000, inv.Total)
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := setup(t)
	ft, err := f.app.Billing.CreateFeeType(ctx, f.accountant, billing.FeeTypeInput{Name: "Inscription", Amount: 25000, Frequency: billing.FrequencyYearly})
	require.NoError(t, err)

	line := billing.LineInput{Description: "Scolarité", Quantity: 1, UnitPrice: 5000}
	tests := []struct {
		name  string
		data  billing.InvoiceInput
		field string
	}{
		{"no lines", billing.InvoiceInput{StudentID: f.student.ID}, "lines"},
		{"zero quantity", billing.InvoiceInput{StudentID: f.student.ID, Lines: []billing.LineInput{{Description: "x", Quantity: 0}}}, "quantity"},
		{"unknown student", billing.InvoiceInput{StudentID: "6f1c7f5e-1f7c-4a5e-9a50-8f1a43c3b0b1", Lines: []billing.LineInput{line}}, "student_id"},
		{"due before issue", billing.InvoiceInput{StudentID: f.student.ID, IssueDate: "2024-10-01", DueDate: "2024-09-30", Lines: []billing.LineInput{line}}, "due_date"},
		{"paid status", billing.InvoiceInput{StudentID: f.student.ID, Status: billing.InvoicePaid, Lines: []billing.LineInput{line}}, "status"},
		{"unknown fee type", billing.InvoiceInput{StudentID: f.student.ID, Lines: []billing.LineInput{
			{FeeTypeID: "6f1c7f5e-1f7c-4a5e-9a50-8f1a43c3b0b1", Description: "x", Quantity: 1},
		}}, "lines[0].fee_type_id"},
		{"quantity overflow", billing.InvoiceInput{StudentID: f.student.ID, Lines: []billing.LineInput{
			{Description: "x", Quantity: 4e9, UnitPrice: 4e9},
		}}, "quantity"},
		{"unit price too large", billing.InvoiceInput{StudentID: f.student.ID, Lines: []billing.LineInput{
			{Description: "x", Quantity: 1, UnitPrice: 2e12},
		}}, "unit_price"},
		{"line amount too large", billing.InvoiceInput{StudentID: f.student.ID, Lines: []billing.LineInput{
			{Description: "x", Quantity: billing.MaxQuantity, UnitPrice: billing.MaxAmount},
		}}, "lines[0].total"},
		{"invoice total too large", billing.InvoiceInput{StudentID: f.student.ID, Lines: []billing.LineInput{
			{Description: "x", Quantity: 1, UnitPrice: 6e11},
			{Description: "y", Quantity: 1, UnitPrice: 6e11},
		}}, "lines"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.app.Billing.CreateInvoice(ctx, f.accountant, tc.data)
			require.Error(t, err)
			assert.Contains(t, testutil.ErrorFields(err), tc.field)
		})
	}

	_, err = f.app.Billing.CreateInvoice(ctx, f.accountant, billing.InvoiceInput{
		StudentID: f.student.ID,
		Lines:     []billing.LineInput{{FeeTypeID: ft.ID, Description: "Inscription", Quantity: 1, UnitPrice: ft.Amount}},
	})
	assert.NoError(t, err)
}

func TestCreateInvoiceOverflowNotStored(t *testing.T) {
	f := setup(t)

	_, err := f.app.Billing.CreateInvoice(ctx, f.accountant, billing.InvoiceInput{
		StudentID: f.student.ID,
		Lines:     []billing.LineInput{{Description: "Scolarité", Quantity: 4e9, UnitPrice: 4e9}},
	})
	assert.Equal(t, []string{"quantity"}, testutil.ErrorFields(err))

	invoices, err := f.app.Billing.ListInvoices(ctx, f.accountant, billing.InvoiceFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	// the largest accepted invoice keeps a positive total
	inv := f.invoice(t, "", billing.LineInput{Description: "Bâtiment", Quantity: 1, UnitPrice: billing.MaxAmount})
	assert.EqualValues(t, billing.MaxAmount, inv.Total)
}

func TestRecordPayment(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, billing.InvoiceSent)

	p, updated, err := f.pay(f.accountant, inv.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, "REC-2024-0001", p.Number)
	assert.Equal(t, time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC), p.PaidAt)
	assert.Equal(t, f.accountant.ActorID(), p.RecordedBy)
	assert.Equal(t, billing.InvoicePartial, updated.Status)
	assert.EqualValues(t, 5000, updated.AmountPaid)
	assert.EqualValues(t, 8000, updated.Balance())

	_, _, err = f.pay(f.accountant, inv.ID, 8001)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, billing.ErrAmountExceedsBalance, vErr.Err)

	p2, updated, err := f.pay(f.accountant, inv.ID, 8000)
	require.NoError(t, err)
	assert.Equal(t, "REC-2024-0002", p2.Number)
	assert.Equal(t, billing.InvoicePaid, updated.Status)
	assert.EqualValues(t, 0, updated.Balance())

	_, _, err = f.pay(f.accountant, inv.ID, 1)
	assert.True(t, errors.As(err, &vErr))

	// removing a payment reopens the invoice
	updated, err = f.app.Billing.DeletePayment(ctx, f.accountant, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePartial, updated.Status)
	updated, err = f.app.Billing.DeletePayment(ctx, f.accountant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceSent, updated.Status)
	assert.EqualValues(t, 0, updated.AmountPaid)
}

func TestRecordPaymentRefused(t *testing.T) {
	f := setup(t)
	draft := f.invoice(t, "")

	_, _, err := f.pay(f.accountant, draft.ID, 1000)
	assert.Equal(t, billing.ErrInvoiceDraft, errors.Cause(err))

	_, _, err = f.pay(f.accountant, "6f1c7f5e-1f7c-4a5e-9a50-8f1a43c3b0b1", 1000)
	assert.True(t, core.IsNotFound(err))

	_, _, err = f.pay(f.accountant, draft.ID, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount")

	secretary := f.app.Member(t, f.app.CreateTenant(t, "Autre"), "sec@autre.sn", authz.RoleSecretaire)
	_, _, err = f.pay(secretary, draft.ID, 1000)
	assert.Equal(t, authz.ErrForbidden, errors.Cause(err))
}

func TestConcurrentPayments(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, billing.InvoiceSent)

	const payers = 4
	var (
		wg   sync.WaitGroup
		errs = make([]error, payers)
	)
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.pay(f.accountant, inv.ID, 10000)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)

	stored, err := f.app.Billing.GetInvoice(ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10000, stored.AmountPaid)
	assert.Equal(t, billing.InvoicePartial, stored.Status)
}

func TestInvoiceWithPaymentsIsFrozen(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, billing.InvoiceSent)
	_, _, err := f.pay(f.accountant, inv.ID, 1000)
	require.NoError(t, err)

	_, err = f.app.Billing.UpdateInvoice(ctx, f.admin, inv.ID, billing.InvoiceInput{
		StudentID: f.student.ID,
		Lines:     []billing.LineInput{{Description: "x", Quantity: 1, UnitPrice: 1}},
	})
	assert.Equal(t, billing.ErrInvoiceHasPayments, errors.Cause(err))
	_, err = f.app.Billing.SetInvoiceStatus(ctx, f.admin, inv.ID, billing.InvoiceStatusChange{Status: billing.InvoiceUnpaid})
	assert.Equal(t, billing.ErrInvoiceHasPayments, errors.Cause(err))
	err = f.app.Billing.DeleteInvoice(ctx, f.admin, inv.ID)
	assert.Equal(t, billing.ErrInvoiceHasPayments, errors.Cause(err))
}

func TestUpdateInvoice(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "")

	updated, err := f.app.Billing.UpdateInvoice(ctx, f.admin, inv.ID, billing.InvoiceInput{
		StudentID: f.student.ID,
		IssueDate: "2024-10-02",
		Status:    billing.InvoiceSent,
		Lines:     []billing.LineInput{{Description: "Scolarité novembre", Quantity: 1, UnitPrice: 5000}},
	})
	require.NoError(t, err)
	assert.Equal(t, inv.Number, updated.Number)
	assert.Equal(t, billing.InvoiceSent, updated.Status)
	assert.EqualValues(t, 5000, updated.Total)

	stored, err := f.app.Billing.GetInvoice(ctx, f.admin, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, "Scolarité novembre", stored.Lines[0].Description)

	_, err = f.app.Billing.UpdateInvoice(ctx, f.accountant, inv.ID, billing.InvoiceInput{})
	assert.Equal(t, authz.ErrForbidden, errors.Cause(err))
}

func TestListInvoices(t *testing.T) {
	f := setup(t)
	draft := f.invoice(t, "")
	sent := f.invoice(t, billing.InvoiceSent)
	other, err := f.app.School.CreateStudent(ctx, f.admin, school.StudentInput{FirstName: "Babacar", LastName: "Diop"})
	require.NoError(t, err)
	late, err := f.app.Billing.CreateInvoice(ctx, f.accountant, billing.InvoiceInput{
		StudentID: other.ID,
		IssueDate: "2024-11-10",
		Status:    billing.InvoiceSent,
		Lines:     []billing.LineInput{{Description: "Scolarité", Quantity: 1, UnitPrice: 5000}},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter billing.InvoiceFilter
		want   []string
	}{
		{"all, most recent first", billing.InvoiceFilter{}, []string{late.Number, sent.Number, draft.Number}},
		{"by status", billing.InvoiceFilter{Status: billing.InvoiceDraft}, []string{draft.Number}},
		{"by student", billing.InvoiceFilter{StudentID: other.ID}, []string{late.Number}},
		{"by student name", billing.InvoiceFilter{Search: "diop"}, []string{late.Number}},
		{"by number", billing.InvoiceFilter{Search: sent.Number}, []string{sent.Number}},
		{"by period", billing.InvoiceFilter{From: "2024-11-01", To: "2024-11-30"}, []string{late.Number}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			invoices, err := f.app.Billing.ListInvoices(ctx, f.admin, tc.filter, nil)
			require.NoError(t, err)
			numbers := make([]string, 0, len(invoices))
			for _, inv := range invoices {
				numbers = append(numbers, inv.Number)
			}
			assert.Equal(t, tc.want, numbers)
		})
	}

	_, err = f.app.Billing.ListInvoices(ctx, f.admin, billing.InvoiceFilter{From: "01/11/2024"}, nil)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "from", vErr.Fields[0].Field)
}

func TestFeeTypes(t *testing.T) {
	f := setup(t)

	ft, err := f.app.Billing.CreateFeeType(ctx, f.accountant, billing.FeeTypeInput{Name: " Cantine ", Amount: 3000, Frequency: billing.FrequencyMonthly})
	require.NoError(t, err)
	assert.Equal(t, "Cantine", ft.Name)

	_, err = f.app.Billing.CreateFeeType(ctx, f.accountant, billing.FeeTypeInput{Name: "Tenue", Amount: 1, Frequency: "hebdomadaire"})
	require.Error(t, err)

	ft, err = f.app.Billing.UpdateFeeType(ctx, f.accountant, ft.ID, billing.FeeTypeInput{Name: "Cantine", Amount: 3500, Frequency: billing.FrequencyMonthly})
	require.NoError(t, err)
	assert.EqualValues(t, 3500, ft.Amount)

	// invoices keep their lines when the fee type goes away
	inv := f.invoice(t, billing.InvoiceSent, billing.LineInput{FeeTypeID: ft.ID, Description: "Cantine", Quantity: 1, UnitPrice: 3500})
	require.NoError(t, f.app.Billing.DeleteFeeType(ctx, f.accountant, ft.ID))
	stored, err := f.app.Billing.GetInvoice(ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.False(t, stored.Lines[0].FeeTypeID.Valid)
	assert.EqualValues(t, 3500, stored.Total)

	fees, err := f.app.Billing.ListFeeTypes(ctx, f.accountant, nil)
	require.NoError(t, err)
	assert.Empty(t, fees)
}

func TestDeleteStudentWithInvoices(t *testing.T) {
	f := setup(t)
	f.invoice(t, "")

	err := f.app.School.DeleteStudent(ctx, f.admin, f.student.ID)
	assert.Equal(t, school.ErrStudentHasInvoices, errors.Cause(err))
}
