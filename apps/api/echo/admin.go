package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/tenant"
)

type adminApi struct {
	tenants     *tenant.Service
	invitations *invitation.Service
}

// registerAdminAPI mounts the super-admin console; the group is restricted to super-admins.
func registerAdminAPI(g *echo.Group, deps ServerDeps) {
	api := adminApi{tenants: deps.Tenants, invitations: deps.Invitations}

	tg := g.Group("/tenants")
	tg.GET("", api.queryTenants)
	tg.GET("/:id", api.retrieveTenant)
	tg.PUT("/:id/status", api.setStatus)
	tg.PUT("/:id/account", api.setAccount)
	tg.POST("/:id/admin-invitation", api.reissueAdminInvitation)

	sg := g.Group("/signups")
	sg.GET("", api.querySignups)
	sg.POST("/:id/approve", api.approve)
	sg.POST("/:id/reject", api.reject)

	g.GET("/usage", api.usage)
}

func (api *adminApi) queryTenants(ctx echo.Context) error {
	var filter tenant.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	tenants, err := api.tenants.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying tenants")
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api *adminApi) retrieveTenant(ctx echo.Context) error {
	t, err := api.tenants.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting tenant")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *adminApi) setStatus(ctx echo.Context) error {
	var data tenant.StatusChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusChange")
	}
	t, err := api.tenants.SetStatus(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting tenant status")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *adminApi) setAccount(ctx echo.Context) error {
	var data tenant.AccountChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AccountChange")
	}
	t, err := api.tenants.SetAccount(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting tenant account")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *adminApi) reissueAdminInvitation(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	d, err := api.invitations.ReissueAdmin(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reissuing admin invitation")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *adminApi) querySignups(ctx echo.Context) error {
	status := tenant.SignupStatus(ctx.QueryParam("status"))
	signups, err := api.tenants.ListSignups(ctx.Request().Context(), status)
	if err != nil {
		return errors.Wrap(err, "listing signups")
	}
	return ctx.JSON(http.StatusOK, signups)
}

func (api *adminApi) approve(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data tenant.Approval
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Approval")
	}
	res, err := api.tenants.Approve(ctx.Request().Context(), ac.ActorID(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "approving signup")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) reject(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data tenant.Rejection
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rejection")
	}
	sr, err := api.tenants.Reject(ctx.Request().Context(), ac.ActorID(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting signup")
	}
	return ctx.JSON(http.StatusOK, sr)
}

func (api *adminApi) usage(ctx echo.Context) error {
	report, err := api.tenants.Usage(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing usage")
	}
	return ctx.JSON(http.StatusOK, report)
}
