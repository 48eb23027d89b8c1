package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/appointment"
)

type appointmentApi struct {
	svc      *appointment.Service
	rooms    RoomServer
	validate *validator.Validate
}

// registerAppointmentAPI mounts the appointment endpoints. Browsers cannot set headers on websocket
// handshakes, so wsJWT reads the token from the `token` query param.
func registerAppointmentAPI(
	g *echo.Group,
	jwt, wsJWT echo.MiddlewareFunc,
	svc *appointment.Service,
	rooms RoomServer,
	validate *validator.Validate,
) {
	api := appointmentApi{svc: svc, rooms: rooms, validate: validate}

	ag := g.Group("/appointments")
	ag.GET("/:id/ws", api.join, wsJWT)

	ag.POST("", api.request, jwt)
	ag.GET("", api.query, jwt)
	ag.GET("/:id", api.retrieve, jwt)
	ag.POST("/:id/response", api.respond, jwt)
	ag.POST("/:id/messages", api.postMessage, jwt)
	ag.GET("/:id/messages", api.queryMessages, jwt)
}

func (api *appointmentApi) request(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data appointment.NewAppointment
	if err = bindJSON(ctx, &data, "NewAppointment"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	appt, err := api.svc.Request(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "requesting appointment")
	}
	return ctx.JSON(http.StatusCreated, appt)
}

func (api *appointmentApi) query(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter appointment.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []appointment.Appointment{})
	}

	appts, err := api.svc.List(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "querying appointments")
	}
	return ctx.JSON(http.StatusOK, appts)
}

func (api *appointmentApi) retrieve(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	appt, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding appointment")
	}
	return ctx.JSON(http.StatusOK, appt)
}

func (api *appointmentApi) respond(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data appointment.Response
	if err = bindJSON(ctx, &data, "Response"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	appt, err := api.svc.Respond(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "answering appointment")
	}
	return ctx.JSON(http.StatusOK, appt)
}

func (api *appointmentApi) postMessage(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data appointment.NewMessage
	if err = bindJSON(ctx, &data, "NewMessage"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.PostMessage(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "posting message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *appointmentApi) queryMessages(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.ListMessages(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []appointment.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *appointmentApi) join(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	room, err := api.svc.Join(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "joining appointment room")
	}
	if err = api.rooms.ServeWS(ctx.Response(), ctx.Request(), room); err != nil {
		return errors.Wrap(err, "serving websocket")
	}
	return nil
}
