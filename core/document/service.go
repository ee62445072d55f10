package document

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/phone"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
)

const pdfContentType = "application/pdf"

var ErrNoRecipient = core.NewFieldError("email", "no guardian email on record for this student")

type (
	Invoices interface {
		GetInvoice(ctx context.Context, scope tenant.Scope, id string) (billing.Invoice, error)
		GetPayment(ctx context.Context, scope tenant.Scope, id string) (billing.Payment, error)
	}

	Students interface {
		GetStudent(ctx context.Context, scope tenant.Scope, id string) (school.Student, error)
	}

	// Listener is notified of every rendered document.
	Listener interface {
		DocumentRendered(ctx context.Context, kind string)
	}

	Service struct {
		invoices  Invoices
		students  Students
		store     core.ObjectStore
		mailSvc   core.EmailService
		logger    core.Logger
		listeners []Listener
	}
)

const (
	KindInvoice = "invoice"
	KindReceipt = "receipt"
)

func NewService(invoices Invoices, students Students, store core.ObjectStore, mailSvc core.EmailService, logger core.Logger, listeners ...Listener) *Service {
	return &Service{
		invoices:  invoices,
		students:  students,
		store:     store,
		mailSvc:   mailSvc,
		logger:    logger,
		listeners: listeners,
	}
}

// logo returns the school logo, or nil when it cannot be read.
func (svc *Service) logo(ctx context.Context, t *tenant.Tenant) []byte {
	if t.LogoKey == "" {
		return nil
	}
	b, err := svc.store.Get(ctx, t.LogoKey)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading logo of %s: %v", t.ID, err))
		return nil
	}
	return b
}

func (svc *Service) rendered(ctx context.Context, kind string) {
	for _, l := range svc.listeners {
		l.DocumentRendered(ctx, kind)
	}
}

func (svc *Service) invoiceDocument(ctx context.Context, ac access.Context, id string) (InvoiceDocument, error) {
	scope, err := ac.Require(authz.InvoicesView)
	if err != nil {
		return InvoiceDocument{}, err
	}
	inv, err := svc.invoices.GetInvoice(ctx, scope, id)
	if err != nil {
		return InvoiceDocument{}, err
	}
	s, err := svc.students.GetStudent(ctx, scope, inv.StudentID)
	if err != nil {
		return InvoiceDocument{}, err
	}
	return InvoiceDocument{Invoice: &inv, Student: &s, Tenant: ac.Tenant, Logo: svc.logo(ctx, ac.Tenant)}, nil
}

func (svc *Service) receiptDocument(ctx context.Context, ac access.Context, id string) (ReceiptDocument, error) {
	scope, err := ac.Require(authz.PaymentsView)
	if err != nil {
		return ReceiptDocument{}, err
	}
	p, err := svc.invoices.GetPayment(ctx, scope, id)
	if err != nil {
		return ReceiptDocument{}, err
	}
	inv, err := svc.invoices.GetInvoice(ctx, scope, p.InvoiceID)
	if err != nil {
		return ReceiptDocument{}, err
	}
	s, err := svc.students.GetStudent(ctx, scope, inv.StudentID)
	if err != nil {
		return ReceiptDocument{}, err
	}
	return ReceiptDocument{Payment: &p, Invoice: &inv, Student: &s, Tenant: ac.Tenant, Logo: svc.logo(ctx, ac.Tenant)}, nil
}

// InvoicePDF returns the rendered invoice and its file name.
func (svc *Service) InvoicePDF(ctx context.Context, ac access.Context, id string) ([]byte, string, error) {
	doc, err := svc.invoiceDocument(ctx, ac, id)
	if err != nil {
		return nil, "", err
	}
	b, err := RenderInvoice(doc)
	if err != nil {
		return nil, "", err
	}
	svc.rendered(ctx, KindInvoice)
	return b, doc.Invoice.Number + ".pdf", nil
}

// ReceiptPDF returns the rendered receipt and its file name.
func (svc *Service) ReceiptPDF(ctx context.Context, ac access.Context, id string) ([]byte, string, error) {
	doc, err := svc.receiptDocument(ctx, ac, id)
	if err != nil {
		return nil, "", err
	}
	b, err := RenderReceipt(doc)
	if err != nil {
		return nil, "", err
	}
	svc.rendered(ctx, KindReceipt)
	return b, doc.Payment.Number + ".pdf", nil
}

// share validates the phone before anything is rendered or uploaded, then publishes the document.
// No record is modified: a failed upload can simply be retried.
func (svc *Service) share(ctx context.Context, ac access.Context, req ShareRequest, guardianPhone, defaultText string, render func() ([]byte, string, error)) (Share, error) {
	number := req.Phone
	if number == "" {
		number = guardianPhone
	}
	canon, err := phone.Normalize(number)
	if err != nil {
		return Share{}, err
	}

	b, filename, err := render()
	if err != nil {
		return Share{}, err
	}
	key := fmt.Sprintf("documents/%s/%s/%s", ac.Tenant.ID, uuid.New().String(), filename)
	docURL, err := svc.store.Put(ctx, key, b)
	if err != nil {
		return Share{}, errors.Wrap(err, "uploading document")
	}

	text := req.Message
	if text == "" {
		text = defaultText
	}
	link, err := WhatsAppLink(canon, text+"\n"+docURL)
	if err != nil {
		return Share{}, err
	}
	return Share{Phone: canon, DocumentURL: docURL, Link: link}, nil
}

func (svc *Service) ShareInvoice(ctx context.Context, ac access.Context, id string, req ShareRequest) (Share, error) {
	doc, err := svc.invoiceDocument(ctx, ac, id)
	if err != nil {
		return Share{}, err
	}
	text := fmt.Sprintf("Bonjour, voici la facture %s de %s (%s).", doc.Invoice.Number, doc.Student.FullName(), ac.Tenant.Name)
	return svc.share(ctx, ac, req, doc.Student.GuardianPhone, text, func() ([]byte, string, error) {
		b, err := RenderInvoice(doc)
		if err != nil {
			return nil, "", err
		}
		svc.rendered(ctx, KindInvoice)
		return b, doc.Invoice.Number + ".pdf", nil
	})
}

func (svc *Service) ShareReceipt(ctx context.Context, ac access.Context, id string, req ShareRequest) (Share, error) {
	doc, err := svc.receiptDocument(ctx, ac, id)
	if err != nil {
		return Share{}, err
	}
	text := fmt.Sprintf("Bonjour, voici le reçu %s du paiement de %s (%s).", doc.Payment.Number, FormatAmount(doc.Payment.Amount), ac.Tenant.Name)
	return svc.share(ctx, ac, req, doc.Student.GuardianPhone, text, func() ([]byte, string, error) {
		b, err := RenderReceipt(doc)
		if err != nil {
			return nil, "", err
		}
		svc.rendered(ctx, KindReceipt)
		return b, doc.Payment.Number + ".pdf", nil
	})
}

// EmailInvoice sends the invoice PDF to the guardian. Delivery is synchronous so failures can be retried.
func (svc *Service) EmailInvoice(ctx context.Context, ac access.Context, id string) error {
	doc, err := svc.invoiceDocument(ctx, ac, id)
	if err != nil {
		return err
	}
	if doc.Student.GuardianEmail == "" {
		return ErrNoRecipient
	}
	b, err := RenderInvoice(doc)
	if err != nil {
		return err
	}
	svc.rendered(ctx, KindInvoice)

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: doc.Student.GuardianName, Address: doc.Student.GuardianEmail}},
		Subject:      fmt.Sprintf("Facture %s - %s", doc.Invoice.Number, ac.Tenant.Name),
		TemplateName: "invoice",
		TemplateData: map[string]string{
			"GuardianName": doc.Student.GuardianName,
			"Number":       doc.Invoice.Number,
			"StudentName":  doc.Student.FullName(),
			"Total":        FormatAmount(doc.Invoice.Total),
			"SchoolName":   ac.Tenant.Name,
		},
	}
	msg.Attach(b, doc.Invoice.Number+".pdf", pdfContentType)
	return errors.Wrap(svc.mailSvc.Send(ctx, msg), "sending invoice")
}
