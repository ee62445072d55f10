// Package document renders invoices and receipts to PDF and hands them off to guardians.
package document

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-pdf/fpdf"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
)

const (
	displayDate     = "02/01/2006"
	displayDateTime = "02/01/2006 15:04"
	currency        = "FCFA"
)

var amountFormatter = money.NewFormatter(0, ",", " ", currency, "1 $")

// FormatAmount formats whole currency units: 13000 gives "13 000 FCFA".
func FormatAmount(amount int64) string {
	return amountFormatter.Format(amount)
}

// PreconditionError is returned when a document lacks one of its identity-bearing fields.
type PreconditionError struct {
	Err error
}

func (e PreconditionError) Error() string {
	return "cannot render document: " + e.Err.Error()
}

type InvoiceDocument struct {
	Invoice *billing.Invoice
	Student *school.Student
	Tenant  *tenant.Tenant
	Logo    []byte // optional
}

type ReceiptDocument struct {
	Payment *billing.Payment
	Invoice *billing.Invoice
	Student *school.Student
	Tenant  *tenant.Tenant
	Logo    []byte // optional
}

func present(ok bool, name string) vala.Checker {
	return func() (bool, string) {
		return ok, name + " is missing"
	}
}

func check(checkers ...vala.Checker) error {
	if err := vala.BeginValidation().Validate(checkers...).Check(); err != nil {
		return &PreconditionError{Err: err}
	}
	return nil
}

func (doc InvoiceDocument) check() error {
	err := check(
		present(doc.Invoice != nil, "invoice"),
		present(doc.Student != nil, "student"),
		present(doc.Tenant != nil, "school"),
	)
	if err != nil {
		return err
	}
	return check(
		vala.StringNotEmpty(doc.Invoice.Number, "invoice number"),
		vala.StringNotEmpty(strings.TrimSpace(doc.Student.FullName()), "student name"),
		vala.StringNotEmpty(doc.Tenant.Name, "school name"),
	)
}

func (doc ReceiptDocument) check() error {
	err := check(
		present(doc.Payment != nil, "payment"),
		present(doc.Invoice != nil, "invoice"),
		present(doc.Student != nil, "student"),
		present(doc.Tenant != nil, "school"),
	)
	if err != nil {
		return err
	}
	return check(
		vala.StringNotEmpty(doc.Payment.Number, "receipt number"),
		vala.StringNotEmpty(doc.Invoice.Number, "invoice number"),
		vala.StringNotEmpty(strings.TrimSpace(doc.Student.FullName()), "student name"),
		vala.StringNotEmpty(doc.Tenant.Name, "school name"),
	)
}

type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newPage(title string, generatedAt time.Time) *page {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false) // keeps the text streams greppable
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	pdf.SetTitle(title, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, p.tr("Document généré le "+generatedAt.Format(displayDateTime)), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return p
}

// logoType maps a sniffed image to the fpdf image type. Unsupported formats are skipped.
func logoType(logo []byte) string {
	mt := mimetype.Detect(logo)
	switch {
	case mt.Is("image/png"):
		return "PNG"
	case mt.Is("image/jpeg"):
		return "JPG"
	case mt.Is("image/gif"):
		return "GIF"
	}
	return ""
}

// header draws the school identity. A missing or unreadable logo is omitted.
func (p *page) header(t *tenant.Tenant, logo []byte) {
	pdf := p.pdf
	textX := 15.0
	if imgType := logoType(logo); imgType != "" {
		opts := fpdf.ImageOptions{ImageType: imgType, ReadDpi: true}
		pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(logo))
		if pdf.Ok() {
			pdf.ImageOptions("logo", 15, 12, 0, 22, false, opts, 0, "")
			textX = 45
		} else {
			pdf.ClearError()
		}
	}

	pdf.SetXY(textX, 14)
	pdf.SetFont("Helvetica", "B", 15)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 7, p.tr(t.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range []string{t.Address, t.City, t.Phone, t.Email} {
		if line == "" {
			continue
		}
		pdf.SetX(textX)
		pdf.CellFormat(0, 4.5, p.tr(line), "", 1, "L", false, 0, "")
	}
	pdf.SetY(42)
}

func (p *page) title(text string) {
	p.pdf.SetFont("Helvetica", "B", 13)
	p.pdf.CellFormat(0, 9, p.tr(text), "B", 1, "L", false, 0, "")
	p.pdf.Ln(3)
}

func (p *page) field(label, value string) {
	p.pdf.SetFont("Helvetica", "B", 10)
	p.pdf.CellFormat(45, 6, p.tr(label), "", 0, "L", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 10)
	p.pdf.CellFormat(0, 6, p.tr(value), "", 1, "L", false, 0, "")
}

func (p *page) amountRow(label string, amount int64, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	p.pdf.SetFont("Helvetica", style, 11)
	p.pdf.CellFormat(0, 7, p.tr(label+" : "+FormatAmount(amount)), "", 1, "R", false, 0, "")
}

func (p *page) output() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "writing pdf")
	}
	return buf.Bytes(), nil
}

func studentFields(p *page, s *school.Student) {
	p.field("Élève :", s.FullName())
	p.field("Matricule :", s.Matricule)
	if s.GuardianName != "" {
		p.field("Parent / tuteur :", s.GuardianName)
	}
}

// RenderInvoice renders the invoice with its lines. The output only varies with the generation time.
func RenderInvoice(doc InvoiceDocument) ([]byte, error) {
	if err := doc.check(); err != nil {
		return nil, err
	}
	inv := doc.Invoice

	p := newPage("Facture "+inv.Number, core.NowFunc())
	p.header(doc.Tenant, doc.Logo)
	p.title("FACTURE N° " + inv.Number)

	p.field("Date d'émission :", inv.IssueDate.Format(displayDate))
	if inv.DueDate.Valid {
		p.field("Échéance :", inv.DueDate.Time.Format(displayDate))
	}
	studentFields(p, doc.Student)
	p.pdf.Ln(4)

	widths := []float64{95, 20, 35, 30}
	pdf := p.pdf
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range []string{"Désignation", "Qté", "Prix unitaire", "Montant"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 8, p.tr(h), "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, l := range inv.Lines {
		pdf.CellFormat(widths[0], 7, p.tr(l.Description), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprint(l.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, p.tr(FormatAmount(l.UnitPrice)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, p.tr(FormatAmount(l.Amount())), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(3)

	total := billing.Total(inv.Lines)
	p.amountRow("Total", total, true)
	if inv.AmountPaid > 0 {
		p.amountRow("Déjà payé", inv.AmountPaid, false)
		p.amountRow("Reste à payer", total-inv.AmountPaid, true)
	}

	if inv.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, p.tr(inv.Notes), "", "L", false)
	}
	return p.output()
}

// RenderReceipt renders the receipt of a single payment.
func RenderReceipt(doc ReceiptDocument) ([]byte, error) {
	if err := doc.check(); err != nil {
		return nil, err
	}
	pay := doc.Payment

	p := newPage("Reçu "+pay.Number, core.NowFunc())
	p.header(doc.Tenant, doc.Logo)
	p.title("REÇU DE PAIEMENT N° " + pay.Number)

	p.field("Date du paiement :", pay.PaidAt.Format(displayDate))
	studentFields(p, doc.Student)
	p.field("Facture :", doc.Invoice.Number)
	p.field("Mode de paiement :", pay.Method.Label())
	if pay.Reference != "" {
		p.field("Référence :", pay.Reference)
	}
	p.pdf.Ln(4)

	p.amountRow("Montant reçu", pay.Amount, true)
	p.amountRow("Total facture", doc.Invoice.Total, false)
	p.amountRow("Reste à payer", doc.Invoice.Balance(), false)

	if pay.Notes != "" {
		p.pdf.Ln(4)
		p.pdf.SetFont("Helvetica", "I", 9)
		p.pdf.MultiCell(0, 5, p.tr(pay.Notes), "", "L", false)
	}
	return p.output()
}
