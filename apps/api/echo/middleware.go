package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/user"
)

// principalMiddleware lets the request through when allow accepts the authenticated caller.
// It must run after the JWT middleware.
func principalMiddleware(allow func(p user.Principal) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getPrincipal(ctx)
			if err != nil {
				return errors.Wrap(err, "getting principal")
			}
			if !allow(p) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// adminMiddleware restricts a route to school administrators and super admins.
// Whether the caller administers the School of the resource is decided by the services.
func adminMiddleware() echo.MiddlewareFunc {
	return principalMiddleware(user.Principal.IsAdmin)
}

// superAdminMiddleware restricts a route to super admins.
func superAdminMiddleware() echo.MiddlewareFunc {
	return principalMiddleware(user.Principal.IsSuperAdmin)
}
