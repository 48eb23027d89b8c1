package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/leave"
)

type leaveApi struct {
	svc      *leave.Service
	validate *validator.Validate
}

func registerLeaveAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *leave.Service, validate *validator.Validate) {
	api := leaveApi{svc: svc, validate: validate}

	lg := g.Group("/leaves", jwt)
	lg.POST("", api.apply)
	lg.GET("", api.query)
	lg.GET("/:id", api.retrieve)
	lg.POST("/:id/decision", api.decide, adminMiddleware())
}

func (api *leaveApi) apply(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data leave.NewRequest
	if err = bindJSON(ctx, &data, "NewRequest"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	lr, err := api.svc.Apply(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "applying for leave")
	}
	return ctx.JSON(http.StatusCreated, lr)
}

func (api *leaveApi) query(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter leave.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []leave.Request{})
	}

	lrs, err := api.svc.List(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "querying leave requests")
	}
	return ctx.JSON(http.StatusOK, lrs)
}

func (api *leaveApi) retrieve(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	lr, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding leave request")
	}
	return ctx.JSON(http.StatusOK, lr)
}

func (api *leaveApi) decide(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data leave.Decision
	if err = bindJSON(ctx, &data, "Decision"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	lr, err := api.svc.Decide(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "deciding leave request")
	}
	return ctx.JSON(http.StatusOK, lr)
}
