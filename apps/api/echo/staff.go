package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/staff"
	"github.com/samaecole/backend/core/user"
)

type RoleOption struct {
	Role  authz.Role `json:"role"`
	Label string     `json:"label"`
}

type staffApi struct {
	svc         *staff.Service
	invitations *invitation.Service
}

func registerStaffAPI(g *echo.Group, deps ServerDeps) {
	api := staffApi{svc: deps.Staff}

	ug := g.Group("/users")
	ug.GET("", api.query)
	ug.GET("/roles", api.queryRoles)
	ug.GET("/:id", api.retrieve)
	ug.PUT("/:id/role", api.changeRole)
	ug.PUT("/:id/active", api.setActive)
	ug.DELETE("/:id", api.destroy)
}

func registerInvitationAPI(g *echo.Group, deps ServerDeps) {
	api := staffApi{invitations: deps.Invitations}

	ig := g.Group("/invitations")
	ig.GET("", api.queryInvitations)
	ig.POST("", api.invite)
	ig.GET("/:id", api.retrieveInvitation)
	ig.POST("/:id/resend", api.resendInvitation)
	ig.POST("/:id/cancel", api.cancelInvitation)
	ig.DELETE("/:id", api.destroyInvitation)
}

// Members

func (api *staffApi) query(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var filter user.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	members, err := api.svc.List(ctx.Request().Context(), ac, filter, ordering(ctx))
	if err != nil {
		return errors.Wrap(err, "listing members")
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *staffApi) queryRoles(ctx echo.Context) error {
	roles := make([]RoleOption, 0, len(authz.Roles))
	for _, r := range authz.Roles {
		roles = append(roles, RoleOption{Role: r, Label: r.Label()})
	}
	return ctx.JSON(http.StatusOK, roles)
}

func (api *staffApi) retrieve(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.Get(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting member")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *staffApi) changeRole(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data staff.RoleChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleChange")
	}
	usr, err := api.svc.ChangeRole(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "changing role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *staffApi) setActive(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data staff.ActiveChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActiveChange")
	}
	usr, err := api.svc.SetActive(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting member activity")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *staffApi) destroy(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = requireConfirmation(ctx); err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), ac, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Invitations

func (api *staffApi) queryInvitations(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var filter invitation.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	invs, err := api.invitations.List(ctx.Request().Context(), ac, filter)
	if err != nil {
		return errors.Wrap(err, "listing invitations")
	}
	return ctx.JSON(http.StatusOK, invs)
}

func (api *staffApi) retrieveInvitation(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	inv, err := api.invitations.Get(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

// invite answers 201 even when the email could not be sent: the delivery tells the client to resend.
func (api *staffApi) invite(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data invitation.NewInvitation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvitation")
	}
	d, err := api.invitations.Create(ctx.Request().Context(), ac, data)
	if err != nil {
		return errors.Wrap(err, "creating invitation")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *staffApi) resendInvitation(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	d, err := api.invitations.Resend(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resending invitation")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *staffApi) cancelInvitation(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	inv, err := api.invitations.Cancel(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *staffApi) destroyInvitation(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = requireConfirmation(ctx); err != nil {
		return err
	}
	if err = api.invitations.Delete(ctx.Request().Context(), ac, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting invitation")
	}
	return ctx.NoContent(http.StatusNoContent)
}
