package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
)

type journeyApi struct {
	svc      *journey.Service
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerJourneyAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := journeyApi{
		svc:      deps.JourneySvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	// the onboardee's own journey
	jg := g.Group("/journey", jwt, onboardeeMiddleware())
	jg.GET("", api.board)
	jg.GET("/stages/:id", api.checklist)
	jg.POST("/toggle", api.toggle)

	// followed onboardees
	og := g.Group("/onboardees/:id", jwt, buddyOrRHMiddleware(), onboardeeFollowerMiddleware(api.usrSvc))
	og.GET("/journey", api.onboardeeJourney)
	og.POST("/stages/:stageId/sign-off", api.signOff)
	og.DELETE("/stages/:stageId/sign-off", api.revokeSignOff)

	g.GET("/buddy/onboardees", api.buddyOnboardees, jwt, buddyOrRHMiddleware())
}

func (api *journeyApi) board(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	board, err := api.svc.Board(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "computing board")
	}
	return ctx.JSON(http.StatusOK, board)
}

func (api *journeyApi) checklist(ctx echo.Context) error {
	stageID, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	items, err := api.svc.Checklist(ctx.Request().Context(), ctxUsr.ID, stageID)
	if err != nil {
		return errors.Wrap(err, "listing stage items")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *journeyApi) toggle(ctx echo.Context) error {
	var data ToggleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ToggleRequest")
	}
	ref := journey.ItemRef{Kind: data.Kind, ID: data.ID}
	if err := ref.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	board, err := api.svc.Toggle(ctx.Request().Context(), ctxUsr.ID, ref, data.Completed)
	if err != nil {
		return errors.Wrap(err, "toggling item")
	}
	return ctx.JSON(http.StatusOK, board)
}

func (api *journeyApi) onboardeeJourney(ctx echo.Context) error {
	usr, err := contextObjectUser(ctx)
	if err != nil {
		return err
	}
	board, err := api.svc.Board(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "computing board")
	}
	summary, err := api.svc.Summary(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "summarizing journey")
	}
	return ctx.JSON(http.StatusOK, OnboardeeJourney{User: usr, Board: board, Summary: summary})
}

func (api *journeyApi) signOff(ctx echo.Context) error {
	usr, err := contextObjectUser(ctx)
	if err != nil {
		return err
	}
	stageID, err := idParam(ctx, "stageId")
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	board, err := api.svc.SignOffStage(ctx.Request().Context(), usr.ID, stageID, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "signing off stage")
	}
	return ctx.JSON(http.StatusOK, board)
}

func (api *journeyApi) revokeSignOff(ctx echo.Context) error {
	usr, err := contextObjectUser(ctx)
	if err != nil {
		return err
	}
	stageID, err := idParam(ctx, "stageId")
	if err != nil {
		return err
	}

	board, err := api.svc.RevokeStageSignOff(ctx.Request().Context(), usr.ID, stageID)
	if err != nil {
		return errors.Wrap(err, "revoking stage sign-off")
	}
	return ctx.JSON(http.StatusOK, board)
}

// buddyOnboardees summarizes the journey of every onboardee the context user is the buddy of.
func (api *journeyApi) buddyOnboardees(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	onboardees, err := api.usrSvc.Onboardees(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "querying onboardees")
	}

	summaries := make([]OnboardeeSummary, 0, len(onboardees))
	for _, usr := range onboardees {
		summary, err := api.svc.Summary(ctx.Request().Context(), usr.ID)
		if err != nil {
			return errors.Wrap(err, "summarizing journey")
		}
		summaries = append(summaries, OnboardeeSummary{User: usr, Summary: summary})
	}
	return ctx.JSON(http.StatusOK, summaries)
}

type (
	ToggleRequest struct {
		Kind      journey.ItemKind `json:"kind"`
		ID        int              `json:"id"`
		Completed bool             `json:"completed"`
	}

	OnboardeeJourney struct {
		User    user.User       `json:"user"`
		Board   journey.Board   `json:"board"`
		Summary journey.Summary `json:"summary"`
	}

	OnboardeeSummary struct {
		User    user.User       `json:"user"`
		Summary journey.Summary `json:"summary"`
	}
)
