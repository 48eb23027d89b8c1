package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/transfer"
)

type transferApi struct {
	svc      *transfer.Service
	validate *validator.Validate
}

func registerTransferAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *transfer.Service, validate *validator.Validate) {
	api := transferApi{svc: svc, validate: validate}

	tg := g.Group("/transfer-certificates", jwt)
	tg.POST("", api.request)
	tg.GET("", api.query)
	tg.GET("/history", api.queryHistory, adminMiddleware())
	tg.GET("/:id", api.retrieve)
	tg.POST("/:id/approve", api.approve, adminMiddleware())
	tg.POST("/:id/reject", api.reject, adminMiddleware())
}

func (api *transferApi) request(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data transfer.NewRequest
	if err = bindJSON(ctx, &data, "NewRequest"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tc, err := api.svc.Request(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "requesting transfer certificate")
	}
	return ctx.JSON(http.StatusCreated, tc)
}

func (api *transferApi) query(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter transfer.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []transfer.Certificate{})
	}

	tcs, err := api.svc.List(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "querying transfer certificates")
	}
	return ctx.JSON(http.StatusOK, tcs)
}

func (api *transferApi) retrieve(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	tc, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding transfer certificate")
	}
	return ctx.JSON(http.StatusOK, tc)
}

func (api *transferApi) approve(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data transfer.Approval
	if err = bindJSON(ctx, &data, "Approval"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tc, err := api.svc.Approve(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "approving transfer certificate")
	}
	return ctx.JSON(http.StatusOK, tc)
}

func (api *transferApi) reject(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	tc, err := api.svc.Reject(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting transfer certificate")
	}
	return ctx.JSON(http.StatusOK, tc)
}

func (api *transferApi) queryHistory(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	hs, err := api.svc.ListHistory(ctx.Request().Context(), p, ctx.QueryParam("school_id"))
	if err != nil {
		return errors.Wrap(err, "querying student histories")
	}
	return ctx.JSON(http.StatusOK, hs)
}
