package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type studentApi struct {
	svc      *student.Service
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerStudentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *student.Service,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := studentApi{svc: svc, usrSvc: usrSvc, validate: validate}

	sg := g.Group("/students", jwt)
	sg.POST("", api.enroll, adminMiddleware())
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id/class", api.assignClass, adminMiddleware())
}

func (api *studentApi) enroll(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data student.NewStudent
	if err = bindJSON(ctx, &data, "NewStudent"); err != nil {
		return err
	}
	if data.SchoolID == "" {
		data.SchoolID = p.SchoolID
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.usrSvc); err != nil {
		return err
	}

	stud, err := api.svc.Enroll(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, stud)
}

func (api *studentApi) query(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var filter student.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.SchoolID = core.CleanString(filter.SchoolID)
	filter.ClassID = core.CleanString(filter.ClassID)

	studs, err := api.svc.List(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, studs)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	stud, err := api.svc.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, stud)
}

func (api *studentApi) assignClass(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data student.AssignClass
	if err = bindJSON(ctx, &data, "AssignClass"); err != nil {
		return err
	}

	stud, err := api.svc.AssignClass(ctx.Request().Context(), p, ctx.Param("id"), core.CleanString(data.ClassID))
	if err != nil {
		return errors.Wrap(err, "assigning class")
	}
	return ctx.JSON(http.StatusOK, stud)
}
