package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasa/backend/core/override"
	"github.com/darasa/backend/core/suspension"
)

type suspensionApi struct {
	svc *suspension.Service
}

func registerSuspensionAPI(g *echo.Group, svc *suspension.Service) {
	api := suspensionApi{svc: svc}

	sg := g.Group("/students/:sid/courses/:cid/suspension")
	sg.GET("", api.retrieve)
	sg.POST("/appeal", api.submitAppeal)

	// instructor endpoints
	g.POST("/suspensions/:id/resolve", api.resolveAppeal)
	g.POST("/suspensions/:id/reinstate", api.reinstate)
}

func (api *suspensionApi) retrieve(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	courseID, err := pathInt(ctx, "cid")
	if err != nil {
		return err
	}

	view, err := api.svc.Get(ctx.Request().Context(), studentID, courseID)
	if err != nil {
		return errors.Wrap(err, "getting suspension")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *suspensionApi) submitAppeal(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	courseID, err := pathInt(ctx, "cid")
	if err != nil {
		return err
	}

	var data suspension.NewAppeal
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAppeal")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	view, err := api.svc.SubmitAppeal(ctx.Request().Context(), studentID, courseID, data)
	if err != nil {
		return errors.Wrap(err, "submitting appeal")
	}
	return ctx.JSON(http.StatusCreated, view)
}

func (api *suspensionApi) resolveAppeal(ctx echo.Context) error {
	suspensionID, err := pathInt(ctx, "id")
	if err != nil {
		return err
	}

	var data suspension.ResolveAppeal
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResolveAppeal")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	view, err := api.svc.ResolveAppeal(ctx.Request().Context(), suspensionID, data)
	if err != nil {
		return errors.Wrap(err, "resolving appeal")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *suspensionApi) reinstate(ctx echo.Context) error {
	suspensionID, err := pathInt(ctx, "id")
	if err != nil {
		return err
	}

	var data struct {
		InstructorID int `json:"instructor_id"`
	}
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding reinstate request")
	}

	view, err := api.svc.Reinstate(ctx.Request().Context(), suspensionID, data.InstructorID)
	if err != nil {
		return errors.Wrap(err, "reinstating student")
	}
	return ctx.JSON(http.StatusOK, view)
}

type overrideApi struct {
	svc *override.Service
}

func registerOverrideAPI(g *echo.Group, svc *override.Service) {
	api := overrideApi{svc: svc}

	// instructor endpoint
	g.POST("/overrides/full-credit", api.grantFullCredit)
}

func (api *overrideApi) grantFullCredit(ctx echo.Context) error {
	var data override.GrantFullCredit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GrantFullCredit")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.GrantFullCredit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "granting full credit")
	}
	return ctx.JSON(http.StatusOK, res)
}
