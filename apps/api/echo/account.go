package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/tenant"
	metricsvc "github.com/samaecole/backend/services/metrics"
)

type (
	LoginResponse struct {
		Token string         `json:"token"`
		User  access.Summary `json:"user"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

type accountApi struct {
	auth        *authenticator
	identities  *identity.Service
	invitations *invitation.Service
	tenants     *tenant.Service
	metrics     *metricsvc.Collector
	validate    *validator.Validate
}

func registerAuthAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	loginLimit, publicLimit echo.MiddlewareFunc,
	deps ServerDeps,
	auth *authenticator,
) {
	api := newAccountApi(deps, auth)

	ag := g.Group("/auth")
	ag.POST("/login", api.login, loginLimit)
	ag.POST("/password-reset", api.resetPassword, publicLimit)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset, publicLimit)
	ag.POST("/email-confirm", api.confirmEmail, publicLimit)

	ag.POST("/token-refresh", api.refreshToken, auth.jwt)
	ag.POST("/logout", api.logout, authed...)
	ag.GET("/me", api.me, authed...)
}

func registerJoinAPI(g *echo.Group, publicLimit echo.MiddlewareFunc, deps ServerDeps) {
	api := newAccountApi(deps, nil)

	jg := g.Group("/join/:token", publicLimit)
	jg.GET("", api.viewInvitation)
	jg.POST("", api.acceptInvitation)
}

func registerSignupAPI(g *echo.Group, publicLimit echo.MiddlewareFunc, deps ServerDeps) {
	api := newAccountApi(deps, nil)
	g.POST("/signup", api.signup, publicLimit)
}

func newAccountApi(deps ServerDeps, auth *authenticator) *accountApi {
	return &accountApi{
		auth:        auth,
		identities:  deps.Identities,
		invitations: deps.Invitations,
		tenants:     deps.Tenants,
		metrics:     deps.Metrics,
		validate:    deps.Validate,
	}
}

// signInFailure names a refused sign-in for the metrics; ok is false for server errors.
func signInFailure(err error) (reason string, ok bool) {
	switch e := errors.Cause(err).(type) {
	case *tenant.GateError:
		return string(e.Reason), true
	case *identity.AuthError:
		if e == identity.ErrEmailNotConfirmed {
			return "email_not_confirmed", true
		}
		return "bad_credentials", true
	}
	switch errors.Cause(err) {
	case access.ErrUnprovisioned:
		return "unprovisioned", true
	case access.ErrDeactivated:
		return "deactivated", true
	}
	return "", false
}

// Handlers

func (api *accountApi) login(ctx echo.Context) error {
	var data identity.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	data.Clean()
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ac, _, err := api.auth.auth.SignIn(ctx.Request().Context(), data)
	if err != nil {
		if reason, ok := signInFailure(err); ok && api.metrics != nil {
			api.metrics.SignInFailed(reason)
		}
		return errors.Wrap(err, "signing in")
	}
	token, err := api.auth.token(ac)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: ac.Summary()})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *accountApi) logout(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.auth.auth.SignOut(ctx.Request().Context(), ac); err != nil {
		return errors.Wrap(err, "signing out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) me(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ac.Summary())
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data identity.PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	if err := api.identities.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || core.IsNotFound(err)) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "Si cette adresse correspond à un compte, un email contenant un lien de réinitialisation vous a été envoyé.",
	})
}

func (api *accountApi) confirmPasswordReset(ctx echo.Context) error {
	var data identity.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}
	if err := api.identities.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Votre mot de passe a été réinitialisé."})
}

func (api *accountApi) confirmEmail(ctx echo.Context) error {
	var data identity.ConfirmEmail
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmEmail")
	}
	if err := api.identities.ConfirmEmail(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "confirming email")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Votre adresse email est confirmée."})
}

func (api *accountApi) viewInvitation(ctx echo.Context) error {
	view, err := api.invitations.Validate(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "validating invitation")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *accountApi) acceptInvitation(ctx echo.Context) error {
	var data invitation.Acceptance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Acceptance")
	}
	res, err := api.invitations.Accept(ctx.Request().Context(), ctx.Param("token"), data)
	if err != nil {
		return errors.Wrap(err, "accepting invitation")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *accountApi) signup(ctx echo.Context) error {
	var data tenant.NewSignup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSignup")
	}
	sr, err := api.tenants.SubmitSignup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting signup")
	}
	return ctx.JSON(http.StatusCreated, sr)
}
