package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/school"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *school.Service, validate *validator.Validate) {
	api := schoolApi{svc: svc, validate: validate}

	sg := g.Group("/schools", jwt)
	sg.POST("", api.create, superAdminMiddleware())
	sg.GET("", api.query)
	sg.GET("/:schoolID", api.retrieve)
	sg.POST("/:schoolID/classes", api.createClass)
	sg.GET("/:schoolID/classes", api.queryClasses)
}

func (api *schoolApi) create(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewSchool
	if err = bindJSON(ctx, &data, "NewSchool"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sch, err := api.svc.Create(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) query(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	schools, err := api.svc.List(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	sch, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("schoolID"))
	if err != nil {
		return errors.Wrap(err, "finding school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewClass
	if err = bindJSON(ctx, &data, "NewClass"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.CreateClass(ctx.Request().Context(), p, ctx.Param("schoolID"), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	classes, err := api.svc.ListClasses(ctx.Request().Context(), p, ctx.Param("schoolID"))
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}
