package document_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/document"
	"github.com/samaecole/backend/core/phone"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
	inmemdb "github.com/samaecole/backend/storage/database/inmem"
	"github.com/samaecole/backend/testutil"
)

var ctx = context.Background()

type fixture struct {
	app        *testutil.App
	school     tenant.Tenant
	accountant access.Context
	student    school.Student
	invoice    billing.Invoice
}

func setup(t *testing.T, guardian school.StudentInput) fixture {
	app := testutil.NewApp(t)
	tn := app.CreateTenant(t, "Cours Privés Le Savoir")
	admin := app.Member(t, tn, "admin@savoir.sn", authz.RoleAdmin)
	accountant := app.Member(t, tn, "compta@savoir.sn", authz.RoleComptable)

	guardian.FirstName, guardian.LastName = "Aminata", "Fall"
	s, err := app.School.CreateStudent(ctx, admin, guardian)
	require.NoError(t, err)
	inv, err := app.Billing.CreateInvoice(ctx, accountant, billing.InvoiceInput{
		StudentID: s.ID,
		IssueDate: "2024-10-01",
		Status:    billing.InvoiceSent,
		Lines: []billing.LineInput{
			{Description: "Scolarité octobre", Quantity: 2, UnitPrice: 5000},
			{Description: "Cantine", Quantity: 1, UnitPrice: 3000},
		},
	})
	require.NoError(t, err)
	return fixture{app: app, school: tn, accountant: accountant, student: s, invoice: inv}
}

func withGuardian() school.StudentInput {
	return school.StudentInput{GuardianName: "Ousmane Fall", GuardianPhone: "77 123 45 67", GuardianEmail: "ousmane.fall@gmail.com"}
}

// stored reads back the document a share URL points to.
func (f fixture) stored(t *testing.T, docURL string) []byte {
	t.Helper()
	key := strings.TrimPrefix(docURL, f.app.Conf.Storage.PublicBaseURL+"/")
	b, err := f.app.Store.Get(ctx, key)
	require.NoError(t, err)
	return b
}

func TestInvoicePDF(t *testing.T) {
	f := setup(t, withGuardian())

	b, filename, err := f.app.Documents.InvoicePDF(ctx, f.accountant, f.invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-0001.pdf", filename)
	assert.True(t, strings.HasPrefix(string(b), "%PDF-"))
	assert.Contains(t, string(b), "Total : 13 000 FCFA")

	secretary := f.app.Member(t, f.school, "secretariat@savoir.sn", authz.RoleSecretaire)
	_, _, err = f.app.Documents.InvoicePDF(ctx, secretary, f.invoice.ID)
	assert.Equal(t, authz.ErrForbidden, errors.Cause(err))

	other := f.app.CreateTenant(t, "Groupe Scolaire Les Pédagogues")
	otherAdmin := f.app.Member(t, other, "admin@pedagogues.sn", authz.RoleAdmin)
	_, _, err = f.app.Documents.InvoicePDF(ctx, otherAdmin, f.invoice.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestShareInvoice(t *testing.T) {
	f := setup(t, withGuardian())

	share, err := f.app.Documents.ShareInvoice(ctx, f.accountant, f.invoice.ID, document.ShareRequest{})
	require.NoError(t, err)
	assert.Equal(t, "221771234567", share.Phone)
	assert.True(t, strings.HasPrefix(share.DocumentURL, f.app.Conf.Storage.PublicBaseURL+"/documents/"+f.school.ID+"/"))
	assert.True(t, strings.HasSuffix(share.DocumentURL, "/FAC-2024-0001.pdf"))
	assert.True(t, strings.HasPrefix(share.Link, "https://wa.me/221771234567?text="))
	assert.Contains(t, share.Link, "FAC-2024-0001")
	assert.Contains(t, string(f.stored(t, share.DocumentURL)), "13 000 FCFA")

	share, err = f.app.Documents.ShareInvoice(ctx, f.accountant, f.invoice.ID, document.ShareRequest{Phone: "+221 33 821 00 00", Message: "Rappel"})
	require.NoError(t, err)
	assert.Equal(t, "221338210000", share.Phone)
	assert.True(t, strings.HasPrefix(share.Link, "https://wa.me/221338210000?text=Rappel"))
}

func TestShareInvalidPhone(t *testing.T) {
	tests := []struct {
		name     string
		guardian school.StudentInput
		req      document.ShareRequest
	}{
		{"invalid override", withGuardian(), document.ShareRequest{Phone: "+33 6 12 34 56 78"}},
		{"no guardian phone", school.StudentInput{}, document.ShareRequest{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t, tc.guardian)
			_, err := f.app.Documents.ShareInvoice(ctx, f.accountant, f.invoice.ID, tc.req)
			var pErr *phone.Error
			require.True(t, errors.As(err, &pErr), "got %v", err)

			// nothing was uploaded
			_, statErr := os.Stat(filepath.Join(f.app.Store.Dir(), "documents"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestShareReceipt(t *testing.T) {
	f := setup(t, withGuardian())
	pay, _, err := f.app.Billing.RecordPayment(ctx, f.accountant, billing.PaymentInput{
		InvoiceID: f.invoice.ID,
		Amount:    5000,
		PaidAt:    "2024-10-05",
		Method:    billing.MethodOrangeMoney,
	})
	require.NoError(t, err)

	b, filename, err := f.app.Documents.ReceiptPDF(ctx, f.accountant, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, "REC-2024-0001.pdf", filename)
	assert.Contains(t, string(b), "Total facture : 13 000 FCFA")

	share, err := f.app.Documents.ShareReceipt(ctx, f.accountant, pay.ID, document.ShareRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(share.DocumentURL, "/REC-2024-0001.pdf"))
	assert.Contains(t, string(f.stored(t, share.DocumentURL)), "REC-2024-0001")
}

func TestEmailInvoice(t *testing.T) {
	f := setup(t, withGuardian())

	require.NoError(t, f.app.Documents.EmailInvoice(ctx, f.accountant, f.invoice.ID))
	sent := f.app.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ousmane.fall@gmail.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "FAC-2024-0001")
	assert.Contains(t, sent[0].TextContent, "13 000 FCFA")
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "FAC-2024-0001.pdf", sent[0].Attachments[0].Filename)
	assert.Equal(t, "application/pdf", sent[0].Attachments[0].ContentType)

	f.app.Mail.FailWith(errors.New("quota exceeded"))
	assert.Error(t, f.app.Documents.EmailInvoice(ctx, f.accountant, f.invoice.ID))
}

func TestEmailInvoiceWithoutRecipient(t *testing.T) {
	f := setup(t, school.StudentInput{GuardianPhone: "77 123 45 67"})

	err := f.app.Documents.EmailInvoice(ctx, f.accountant, f.invoice.ID)
	assert.Equal(t, document.ErrNoRecipient, err)
	assert.Equal(t, []string{"email"}, testutil.ErrorFields(err))
	assert.Empty(t, f.app.Mail.SentMessages())
}

type renderCounter struct {
	mu    sync.Mutex
	kinds []string
}

func (c *renderCounter) DocumentRendered(_ context.Context, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

func TestListeners(t *testing.T) {
	f := setup(t, withGuardian())
	counter := &renderCounter{}
	svc := document.NewService(inmemdb.NewBillingRepository(f.app.DB), inmemdb.NewSchoolRepository(f.app.DB),
		f.app.Store, f.app.Mail, f.app.Logger, counter)

	_, _, err := svc.InvoicePDF(ctx, f.accountant, f.invoice.ID)
	require.NoError(t, err)
	_, err = svc.ShareInvoice(ctx, f.accountant, f.invoice.ID, document.ShareRequest{Phone: "12"})
	require.Error(t, err)

	assert.Equal(t, []string{document.KindInvoice}, counter.kinds)
}
