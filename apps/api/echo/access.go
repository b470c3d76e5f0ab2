package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/access"
	"github.com/trezcool/firststep/core/user"
)

type accessApi struct {
	svc      *access.Service
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerAccessAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := accessApi{svc: deps.AccessSvc, usrSvc: deps.UserSvc, validate: deps.Validate}

	ag := g.Group("/accesses", jwt)
	ag.GET("", api.query)
	ag.POST("", api.create, rhMiddleware())
	ag.GET("/permissions", api.queryPermissions)
	ag.PUT("/permissions", api.bulkSetPermissions, rhMiddleware())
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update, rhMiddleware())
	ag.DELETE("/:id", api.destroy, rhMiddleware())
	ag.PUT("/:id/permissions/:userId", api.setPermission, rhMiddleware())
}

func (api *accessApi) query(ctx echo.Context) error {
	accesses, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying accesses")
	}
	return ctx.JSON(http.StatusOK, accesses)
}

func (api *accessApi) retrieve(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	a, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting access")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *accessApi) create(ctx echo.Context) error {
	var data access.NewAccess
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccess")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating access")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *accessApi) update(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data access.UpdateAccess
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAccess")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating access")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *accessApi) destroy(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting access")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// queryPermissions lists the permissions of `user_id` (the context user by default).
// Only HR can look at someone else's.
func (api *accessApi) queryPermissions(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	userID := core.CleanString(ctx.QueryParam("user_id"))
	if userID == "" {
		userID = ctxUsr.ID
	}
	if userID != ctxUsr.ID && !ctxUsr.IsRH() {
		return errHttpForbidden
	}

	perms, err := api.svc.Permissions(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying permissions")
	}
	return ctx.JSON(http.StatusOK, perms)
}

func (api *accessApi) setPermission(ctx echo.Context) error {
	accessID, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), ctx.Param("userId"))
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}

	var data access.SetPermission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPermission")
	}

	perm, err := api.svc.SetPermission(ctx.Request().Context(), usr.ID, accessID, data.Granted)
	if err != nil {
		return errors.Wrap(err, "setting permission")
	}
	return ctx.JSON(http.StatusOK, perm)
}

func (api *accessApi) bulkSetPermissions(ctx echo.Context) error {
	var data access.BulkSetPermissions
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkSetPermissions")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if _, err := api.usrSvc.GetByID(ctx.Request().Context(), data.UserID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "user_id", Error: err.Error()})
		}
		return errors.Wrap(err, "finding user by ID")
	}

	perms, err := api.svc.BulkSetPermissions(ctx.Request().Context(), data.UserID, data.Status)
	if err != nil {
		return errors.Wrap(err, "setting permissions")
	}
	return ctx.JSON(http.StatusOK, perms)
}
