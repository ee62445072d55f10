package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/document"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/phone"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/staff"
	"github.com/samaecole/backend/core/tenant"
)

var (
	errUnauthorized   = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errRefreshExpired = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden  = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// statusOf returns the status of the domain errors whose message is safe to show as is.
func statusOf(err error) (int, bool) {
	switch err {
	case identity.ErrBadCredentials, identity.ErrEmailNotConfirmed, billing.ErrAmountExceedsBalance:
		return http.StatusBadRequest, true
	case identity.ErrSessionInactive:
		return http.StatusUnauthorized, true
	case authz.ErrForbidden, access.ErrNoTenantScope, access.ErrUnprovisioned, access.ErrDeactivated,
		tenant.ErrInvalidScope, staff.ErrSelf:
		return http.StatusForbidden, true
	case school.ErrClassNotEmpty, school.ErrStudentHasInvoices, school.ErrMatriculeExists,
		billing.ErrInvoiceHasPayments, billing.ErrInvoiceDraft,
		tenant.ErrSignupReviewed,
		identity.ErrEmailExists, invitation.ErrPending, invitation.ErrIdentityExists,
		invitation.ErrTenantJoined:
		return http.StatusConflict, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if c, ok := statusOf(cause); ok {
			code = c
			message = cause.Error()
		} else if core.IsNotFound(err) {
			code = http.StatusNotFound
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				code = http.StatusBadRequest
				message = core.TranslateErrors(origErr, translator)
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *phone.Error:
				code = http.StatusBadRequest
				message = echo.Map{"phone": origErr.Error()}
			case *tenant.GateError:
				code = http.StatusForbidden
				message = echo.Map{"error": origErr.Message, "reason": origErr.Reason}
			case *invitation.StateError:
				code = http.StatusGone
				if origErr.Status == invitation.StatusAccepted {
					code = http.StatusConflict
				}
				message = echo.Map{"error": origErr.Error(), "status": origErr.Status}
			case *document.PreconditionError:
				code = http.StatusUnprocessableEntity
				message = origErr.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var person core.LogPerson
				if ac, aErr := contextAccess(ctx); aErr == nil {
					person = core.LogPerson{ID: ac.Identity.ID, Username: ac.ActorName(), Email: ac.Identity.Email}
				}
				logger.Error(msg, errors.Wrap(err, msg), person)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
