package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/authz"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/tenant"
)

const maxLogoSize = 2 << 20

var errLogoType = core.NewFieldError("logo", "Le logo doit être une image PNG ou JPEG de 2 Mo maximum.")

type schoolApi struct {
	svc     *school.Service
	tenants *tenant.Service
	store   core.ObjectStore
}

func registerSchoolAPI(g *echo.Group, deps ServerDeps) {
	api := schoolApi{tenants: deps.Tenants, store: deps.Store}

	sg := g.Group("/school")
	sg.GET("", api.profile)
	sg.PUT("", api.updateProfile)
	sg.POST("/logo", api.uploadLogo)
}

func registerClassAPI(g *echo.Group, deps ServerDeps) {
	api := schoolApi{svc: deps.School}

	cg := g.Group("/classes")
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass)
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass)
	cg.DELETE("/:id", api.destroyClass)
}

func registerStudentAPI(g *echo.Group, deps ServerDeps) {
	api := schoolApi{svc: deps.School}

	sg := g.Group("/students")
	sg.GET("", api.queryStudents)
	sg.POST("", api.createStudent)
	sg.GET("/:id", api.retrieveStudent)
	sg.PUT("/:id", api.updateStudent)
	sg.DELETE("/:id", api.destroyStudent)
}

// School profile

func (api *schoolApi) profile(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ac.Tenant)
}

func (api *schoolApi) updateProfile(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	scope, err := ac.Require(authz.SchoolEdit)
	if err != nil {
		return err
	}

	var data tenant.UpdateTenant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}
	t, err := api.tenants.UpdateProfile(ctx.Request().Context(), scope, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *schoolApi) uploadLogo(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	scope, err := ac.Require(authz.SchoolEdit)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("logo")
	if err != nil {
		return core.NewFieldError("logo", "Ce champ est obligatoire.")
	}
	if fh.Size > maxLogoSize {
		return errLogoType
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening logo")
	}
	defer f.Close()
	b, err := ioutil.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading logo")
	}

	mt := mimetype.Detect(b)
	var ext string
	switch {
	case mt.Is("image/png"):
		ext = ".png"
	case mt.Is("image/jpeg"):
		ext = ".jpg"
	default:
		return errLogoType
	}

	key := "logos/" + scope.TenantID() + "/" + uuid.New().String() + ext
	url, err := api.store.Put(ctx.Request().Context(), key, b)
	if err != nil {
		return errors.Wrap(err, "storing logo")
	}
	t, err := api.tenants.SetLogo(ctx.Request().Context(), scope, key, url)
	if err != nil {
		return errors.Wrap(err, "setting logo")
	}
	return ctx.JSON(http.StatusOK, t)
}

// Classes

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var filter school.ClassFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ClassFilter")
	}
	classes, err := api.svc.ListClasses(ctx.Request().Context(), ac, filter, ordering(ctx))
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.GetClass(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data school.ClassInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClassInput")
	}
	c, err := api.svc.CreateClass(ctx.Request().Context(), ac, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data school.ClassInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClassInput")
	}
	c, err := api.svc.UpdateClass(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = requireConfirmation(ctx); err != nil {
		return err
	}
	if err = api.svc.DeleteClass(ctx.Request().Context(), ac, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var filter school.StudentFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to StudentFilter")
	}
	students, err := api.svc.ListStudents(ctx.Request().Context(), ac, filter, ordering(ctx))
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.GetStudent(ctx.Request().Context(), ac, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) createStudent(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data school.StudentInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentInput")
	}
	s, err := api.svc.CreateStudent(ctx.Request().Context(), ac, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	var data school.StudentInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentInput")
	}
	s, err := api.svc.UpdateStudent(ctx.Request().Context(), ac, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	ac, err := contextAccess(ctx)
	if err != nil {
		return err
	}
	if err = requireConfirmation(ctx); err != nil {
		return err
	}
	if err = api.svc.DeleteStudent(ctx.Request().Context(), ac, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
