package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type Stats struct {
	Users     int `json:"users"`
	Courses   int `json:"courses"`
	Documents int `json:"documents"`
	Accesses  int `json:"accesses"`
}

func registerStatsAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	g.GET("/stats", func(ctx echo.Context) error {
		rctx := ctx.Request().Context()
		var stats Stats
		var err error
		if stats.Users, err = deps.UserSvc.Count(rctx); err != nil {
			return errors.Wrap(err, "counting users")
		}
		if stats.Courses, err = deps.JourneySvc.CountCourses(rctx); err != nil {
			return errors.Wrap(err, "counting courses")
		}
		if stats.Documents, err = deps.DocumentSvc.Count(rctx); err != nil {
			return errors.Wrap(err, "counting documents")
		}
		if stats.Accesses, err = deps.AccessSvc.Count(rctx); err != nil {
			return errors.Wrap(err, "counting accesses")
		}
		return ctx.JSON(http.StatusOK, stats)
	}, jwt, rhMiddleware())
}
