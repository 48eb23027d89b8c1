package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
)

type feeApi struct {
	svc *fee.Service
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *fee.Service) {
	api := feeApi{svc: svc}

	// gateway callback: authenticated by its signature
	g.POST("/payments/notifications", api.notify)

	fg := g.Group("/fees/:studentID", jwt)
	fg.GET("", api.statement)
	fg.PATCH("", api.updateTerms, adminMiddleware())
	fg.POST("/payments", api.recordPayment, adminMiddleware())
	fg.GET("/payments", api.queryPayments)
	fg.POST("/orders", api.createOrder)
}

func (api *feeApi) statement(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	st, err := api.svc.Statement(ctx.Request().Context(), p, ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "building fee statement")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *feeApi) updateTerms(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data fee.UpdateTerms
	if err = bindJSON(ctx, &data, "UpdateTerms"); err != nil {
		return err
	}

	ledger, err := api.svc.UpdateFeeTerms(ctx.Request().Context(), p, ctx.Param("studentID"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee terms")
	}
	return ctx.JSON(http.StatusOK, ledger)
}

func (api *feeApi) recordPayment(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data fee.NewPayment
	if err = bindJSON(ctx, &data, "NewPayment"); err != nil {
		return err
	}

	pmt, err := api.svc.RecordManualPayment(ctx.Request().Context(), p, ctx.Param("studentID"), data.Amount)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *feeApi) queryPayments(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	payments, err := api.svc.ListPayments(ctx.Request().Context(), p, ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []fee.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *feeApi) createOrder(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data fee.NewOrder
	if err = bindJSON(ctx, &data, "NewOrder"); err != nil {
		return err
	}

	order, err := api.svc.CreateOrder(ctx.Request().Context(), p, ctx.Param("studentID"), data.Amount)
	if err != nil {
		return errors.Wrap(err, "creating payment order")
	}
	return ctx.JSON(http.StatusCreated, order)
}

func (api *feeApi) notify(ctx echo.Context) error {
	var data fee.Notification
	if err := bindJSON(ctx, &data, "Notification"); err != nil {
		return err
	}

	order, err := api.svc.HandleNotification(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == core.ErrForbidden {
			return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
		}
		return errors.Wrap(err, "handling payment notification")
	}
	return ctx.JSON(http.StatusOK, order)
}
