package report

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/school"
)

const (
	invoiceSheet = "Factures"
	XLSXType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var invoiceHeaders = []interface{}{"Numéro", "Date", "Échéance", "Élève", "Matricule", "Statut", "Total", "Payé", "Reste à payer"}

// ExportInvoices writes the invoices matching filter to a spreadsheet, with a totals row.
func (svc *Service) ExportInvoices(ctx context.Context, ac access.Context, filter billing.InvoiceFilter) ([]byte, string, error) {
	scope, err := ac.Require(authz.ReportsExport)
	if err != nil {
		return nil, "", err
	}
	if err = filter.Parse(); err != nil {
		return nil, "", err
	}

	invoices, err := svc.invoices.QueryInvoices(ctx, scope, filter, []core.DBOrdering{{Field: "issue_date", Ascending: true}, {Field: "number", Ascending: true}})
	if err != nil {
		return nil, "", errors.Wrap(err, "querying invoices")
	}
	students, err := svc.students.QueryStudents(ctx, scope, school.StudentFilter{}, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "querying students")
	}
	byID := make(map[string]school.Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}

	b, err := invoicesWorkbook(invoices, byID)
	if err != nil {
		return nil, "", err
	}
	return b, fmt.Sprintf("factures-%s.xlsx", core.NowFunc().Format("20060102")), nil
}

func invoicesWorkbook(invoices []billing.Invoice, students map[string]school.Student) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}
	if err := f.SetSheetRow(invoiceSheet, "A1", &invoiceHeaders); err != nil {
		return nil, errors.Wrap(err, "writing headers")
	}

	var total, paid int64
	for i, inv := range invoices {
		s := students[inv.StudentID]
		due := ""
		if inv.DueDate.Valid {
			due = inv.DueDate.Time.Format("02/01/2006")
		}
		row := []interface{}{
			inv.Number,
			inv.IssueDate.Format("02/01/2006"),
			due,
			s.FullName(),
			s.Matricule,
			string(inv.Status),
			inv.Total,
			inv.AmountPaid,
			inv.Balance(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err = f.SetSheetRow(invoiceSheet, cell, &row); err != nil {
			return nil, errors.Wrap(err, "writing invoice row")
		}
		total += inv.Total
		paid += inv.AmountPaid
	}

	last := len(invoices) + 2
	totals := []interface{}{"Total", "", "", "", "", "", total, paid, total - paid}
	cell, err := excelize.CoordinatesToCellName(1, last)
	if err != nil {
		return nil, err
	}
	if err = f.SetSheetRow(invoiceSheet, cell, &totals); err != nil {
		return nil, errors.Wrap(err, "writing totals")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	amounts, err := f.NewStyle(&excelize.Style{NumFmt: 3}) // #,##0
	if err != nil {
		return nil, err
	}
	lastCell := fmt.Sprintf("I%d", last)
	_ = f.SetCellStyle(invoiceSheet, "G2", lastCell, amounts)
	_ = f.SetCellStyle(invoiceSheet, "A1", "I1", bold)
	_ = f.SetCellStyle(invoiceSheet, fmt.Sprintf("A%d", last), fmt.Sprintf("F%d", last), bold)
	_ = f.SetColWidth(invoiceSheet, "A", "I", 16)
	_ = f.SetColWidth(invoiceSheet, "D", "D", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf.Bytes(), nil
}
