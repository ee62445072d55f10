package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, deps ServerDeps) {
	api := reportApi{svc: deps.Reports}

	g.GET("/dashboard", api.dashboard)
	g.GET("/reports/invoices.xlsx", api.exportInvoices)
}

func (api *reportApi) dashboard(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Dashboard(ctx.Request().Context(), ac)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *reportApi) exportInvoices(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var filter billing.InvoiceFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to InvoiceFilter")
	}
	b, filename, err := api.svc.ExportInvoices(ctx.Request().Context(), ac, filter)
	if err != nil {
		return errors.Wrap(err, "exporting invoices")
	}
	return attachment(ctx, xlsxContentType, filename, b)
}
