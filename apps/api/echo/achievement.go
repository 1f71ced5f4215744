package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
)

const catalogCacheControl = "private, max-age=300"

var timeNow = func() time.Time { return time.Now().UTC() } // mockable

type (
	achievementApiDeps struct {
		conf      *core.Config
		logger    core.Logger
		svc       *achievement.Service
		scheduler *achievement.Scheduler
		validate  *validator.Validate
	}

	achievementApi struct {
		achievementApiDeps
	}

	// presentationPlan tells polling clients what to show, when, and when to poll again.
	presentationPlan struct {
		Presentations  []achievement.Presentation `json:"presentations"`
		PollIntervalMS int64                      `json:"poll_interval_ms"`
	}
)

func registerAchievementAPI(g *echo.Group, jwt, wsJWT echo.MiddlewareFunc, deps achievementApiDeps) {
	api := achievementApi{deps}

	ag := g.Group("/achievements")
	ag.GET("", api.catalog, jwt)
	ag.GET("/me", api.earned, jwt)
	ag.GET("/progress", api.progress, jwt)
	ag.GET("/summary", api.summary, jwt)
	ag.GET("/new", api.queryNew, jwt)
	ag.POST("/recheck", api.recheck, jwt)
	ag.POST("/:id/displayed", api.markDisplayed, jwt)
	ag.GET("/stream", api.stream, wsJWT)
}

func (api *achievementApi) plan(batch []achievement.UserAchievement) presentationPlan {
	return presentationPlan{
		Presentations:  api.scheduler.Schedule(batch, timeNow()),
		PollIntervalMS: api.conf.Achievements.PollInterval.Milliseconds(),
	}
}

// Handlers

func (api *achievementApi) catalog(ctx echo.Context) error {
	ctx.Response().Header().Set("Cache-Control", catalogCacheControl)
	return ctx.JSON(http.StatusOK, api.svc.Catalog().Public())
}

func (api *achievementApi) earned(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	achs, err := api.svc.UserAchievements(ctx.Request().Context(), userID, ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying user achievements")
	}
	return ctx.JSON(http.StatusOK, achs)
}

func (api *achievementApi) progress(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}
	progress, err := api.svc.Progress(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "computing progress")
	}
	return ctx.JSON(http.StatusOK, progress)
}

func (api *achievementApi) summary(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "summarizing achievements")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *achievementApi) queryNew(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}
	pending, err := api.svc.NewAchievements(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying new achievements")
	}
	return ctx.JSON(http.StatusOK, api.plan(pending))
}

func (api *achievementApi) recheck(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}
	earned, err := api.svc.Evaluate(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "evaluating achievements")
	}
	return ctx.JSON(http.StatusOK, api.plan(earned))
}

func (api *achievementApi) markDisplayed(ctx echo.Context) error {
	userID, err := getContextUserID(ctx)
	if err != nil {
		return err
	}
	param := achievement.IDParam{ID: ctx.Param("id")}
	if err = api.validate.Struct(param); err != nil {
		return err
	}

	if err = api.svc.MarkDisplayed(ctx.Request().Context(), userID, param.ID); err != nil {
		if errors.Cause(err) == achievement.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "marking achievement displayed")
	}
	return ctx.NoContent(http.StatusNoContent)
}
