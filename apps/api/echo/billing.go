package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/document"
)

const pdfContentType = "application/pdf"

type PaymentResponse struct {
	Payment billing.Payment `json:"payment"`
	Invoice billing.Invoice `json:"invoice"`
}

type billingApi struct {
	svc  *billing.Service
	docs *document.Service
}

func registerFeeTypeAPI(g *echo.Group, deps ServerDeps) {
	api := billingApi{svc: deps.Billing}

	fg := g.Group("/fee-types")
	fg.GET("", api.queryFeeTypes)
	fg.POST("", api.createFeeType)
	fg.GET("/:id", api.retrieveFeeType)
	fg.PUT("/:id", api.updateFeeType)
	fg.DELETE("/:id", api.destroyFeeType)
}

func registerInvoiceAPI(g *echo.Group, deps ServerDeps) {
	api := billingApi{svc: deps.Billing, docs: deps.Documents}

	ig := g.Group("/invoices")
	ig.GET("", api.queryInvoices)
	ig.POST("", api.createInvoice)
	ig.GET("/:id", api.retrieveInvoice)
	ig.PUT("/:id", api.updateInvoice)
	ig.DELETE("/:id", api.destroyInvoice)
	ig.PUT("/:id/status", api.setInvoiceStatus)
	ig.GET("/:id/pdf", api.invoicePDF)
	ig.POST("/:id/share", api.shareInvoice)
	ig.POST("/:id/email", api.emailInvoice)
}

func registerPaymentAPI(g *echo.Group, deps ServerDeps) {
	api := billingApi{svc: deps.Billing, docs: deps.Documents}

	pg := g.Group("/payments")
	pg.GET("", api.queryPayments)
	pg.POST("", api.recordPayment)
	pg.GET("/:id", api.retrievePayment)
	pg.DELETE("/:id", api.destroyPayment)
	pg.GET("/:id/receipt", api.receiptPDF)
	pg.POST("/:id/share", api.shareReceipt)
}

// Fee types

func (api *billingApi) queryFeeTypes(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	fees, err := api.svc.ListFeeTypes(ctx.Request().Context(), ac, ordering(ctx))
	if err != nil {
		return errors.Wrap(err, "listing fee types")
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *billingApi) retrieveFeeType(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	ft, err := api.svc.GetFeeType(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting fee type")
	}
	return ctx.JSON(http.StatusOK, ft)
}

func (api *billingApi) createFeeType(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data billing.FeeTypeInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FeeTypeInput")
	}
	ft, err := api.svc.CreateFeeType(ctx.Request().Context(), ac, data)
	if err != nil {
		return errors.Wrap(err, "creating fee type")
	}
	return ctx.JSON(http.StatusCreated, ft)
}

func (api *billingApi) updateFeeType(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data billing.FeeTypeInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FeeTypeInput")
	}
	ft, err := api.svc.UpdateFeeType(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee type")
	}
	return ctx.JSON(http.StatusOK, ft)
}

func (api *billingApi) destroyFeeType(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = requireConfirmation(ctx); err != nil {
		return err
	}
	if err = api.svc.DeleteFeeType(ctx.Request().Context(), ac, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee type")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Invoices

func (api *billingApi) queryInvoices(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var filter billing.InvoiceFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to InvoiceFilter")
	}
	invoices, err := api.svc.ListInvoices(ctx.Request().Context(), ac, filter, ordering(ctx))
	if err != nil {
		return errors.Wrap(err, "listing invoices")
	}
	return ctx.JSON(http.StatusOK, invoices)
}

func (api *billingApi) retrieveInvoice(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.GetInvoice(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting invoice")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) createInvoice(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data billing.InvoiceInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InvoiceInput")
	}
	inv, err := api.svc.CreateInvoice(ctx.Request().Context(), ac, data)
	if err != nil {
		return errors.Wrap(err, "creating invoice")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *billingApi) updateInvoice(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data billing.InvoiceInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InvoiceInput")
	}
	inv, err := api.svc.UpdateInvoice(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating invoice")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) setInvoiceStatus(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data billing.InvoiceStatusChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InvoiceStatusChange")
	}
	inv, err := api.svc.SetInvoiceStatus(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting invoice status")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) destroyInvoice(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = requireConfirmation(ctx); err != nil {
		return err
	}
	if err = api.svc.DeleteInvoice(ctx.Request().Context(), ac, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting invoice")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) invoicePDF(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	b, filename, err := api.docs.InvoicePDF(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rendering invoice")
	}
	return attachment(ctx, pdfContentType, filename, b)
}

func (api *billingApi) shareInvoice(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data document.ShareRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ShareRequest")
	}
	share, err := api.docs.ShareInvoice(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sharing invoice")
	}
	return ctx.JSON(http.StatusOK, share)
}

func (api *billingApi) emailInvoice(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.docs.EmailInvoice(ctx.Request().Context(), ac, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "emailing invoice")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "La facture a été envoyée par email."})
}

// Payments

func (api *billingApi) queryPayments(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var filter billing.PaymentFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to PaymentFilter")
	}
	payments, err := api.svc.ListPayments(ctx.Request().Context(), ac, filter)
	if err != nil {
		return errors.Wrap(err, "listing payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *billingApi) retrievePayment(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.GetPayment(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *billingApi) recordPayment(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data billing.PaymentInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentInput")
	}
	p, inv, err := api.svc.RecordPayment(ctx.Request().Context(), ac, data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, PaymentResponse{Payment: p, Invoice: inv})
}

// destroyPayment returns the invoice with its status recomputed.
func (api *billingApi) destroyPayment(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = requireConfirmation(ctx); err != nil {
		return err
	}
	inv, err := api.svc.DeletePayment(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) receiptPDF(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	b, filename, err := api.docs.ReceiptPDF(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rendering receipt")
	}
	return attachment(ctx, pdfContentType, filename, b)
}

func (api *billingApi) shareReceipt(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data document.ShareRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ShareRequest")
	}
	share, err := api.docs.ShareReceipt(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sharing receipt")
	}
	return ctx.JSON(http.StatusOK, share)
}
