package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core/journey"
)

// catalogApi manages the onboarding program: stages, their tasks and their courses.
type catalogApi struct {
	svc      *journey.Service
	validate *validator.Validate
}

func registerCatalogAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := catalogApi{svc: deps.JourneySvc, validate: deps.Validate}

	sg := g.Group("/stages", jwt)
	sg.GET("", api.queryStages)
	sg.GET("/:id", api.retrieveStage)
	sg.POST("", api.createStage, rhMiddleware())
	sg.PUT("/:id", api.updateStage, rhMiddleware())

	tg := g.Group("/tasks", jwt)
	tg.GET("", api.queryTasks)
	tg.POST("", api.createTask, rhMiddleware())
	tg.PUT("/:id", api.updateTask, rhMiddleware())
	tg.DELETE("/:id", api.destroyTask, rhMiddleware())

	cg := g.Group("/courses", jwt)
	cg.GET("", api.queryCourses)
	cg.GET("/:id", api.retrieveCourse)
	cg.POST("", api.createCourse, rhMiddleware())
	cg.PUT("/:id", api.updateCourse, rhMiddleware())
	cg.DELETE("/:id", api.destroyCourse, rhMiddleware())
}

// Stages

func (api *catalogApi) queryStages(ctx echo.Context) error {
	stages, err := api.svc.QueryStages(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying stages")
	}
	return ctx.JSON(http.StatusOK, stages)
}

func (api *catalogApi) retrieveStage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	st, err := api.svc.GetStage(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting stage")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *catalogApi) createStage(ctx echo.Context) error {
	var data journey.NewStage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.CreateStage(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating stage")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *catalogApi) updateStage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data journey.UpdateStage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStage")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.UpdateStage(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating stage")
	}
	return ctx.JSON(http.StatusOK, st)
}

// Tasks

func (api *catalogApi) queryTasks(ctx echo.Context) error {
	stageID, err := stageFilter(ctx)
	if err != nil {
		return err
	}
	tasks, err := api.svc.QueryTasks(ctx.Request().Context(), stageID)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *catalogApi) createTask(ctx echo.Context) error {
	var data journey.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.CreateTask(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *catalogApi) updateTask(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data journey.UpdateTask
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.UpdateTask(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *catalogApi) destroyTask(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTask(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Courses

func (api *catalogApi) queryCourses(ctx echo.Context) error {
	stageID, err := stageFilter(ctx)
	if err != nil {
		return err
	}
	courses, err := api.svc.QueryCourses(ctx.Request().Context(), stageID)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *catalogApi) retrieveCourse(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	c, err := api.svc.GetCourse(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *catalogApi) createCourse(ctx echo.Context) error {
	var data journey.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *catalogApi) updateCourse(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data journey.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.UpdateCourse(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *catalogApi) destroyCourse(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCourse(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}
