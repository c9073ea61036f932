package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasa/backend/core/progression"
)

type progressionApi struct {
	svc *progression.Service
}

func registerProgressionAPI(g *echo.Group, svc *progression.Service) {
	api := progressionApi{svc: svc}

	sg := g.Group("/students/:sid")
	sg.GET("/courses/:cid/progress", api.courseProgress)
	sg.GET("/courses/:cid/score", api.courseScore)
	sg.GET("/modules/:mid/progress", api.moduleProgress)
	sg.GET("/modules/:mid/attempts", api.attemptHistory)
	sg.POST("/modules/:mid/retake", api.requestRetake)
	sg.POST("/lessons/:lid/progress", api.recordLessonProgress)
	sg.POST("/assessments/:aid/attempts", api.submitAttempt)
	sg.GET("/assessments/:aid/attempts-remaining", api.attemptsRemaining)

	// instructor endpoints
	g.POST("/attempts/:id/grade", api.gradeAttempt)
}

// pathInt parses a path parameter; a non-numeric value can never match a record.
func pathInt(ctx echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return v, nil
}

// Handlers

func (api *progressionApi) moduleProgress(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	moduleID, err := pathInt(ctx, "mid")
	if err != nil {
		return err
	}

	view, err := api.svc.GetModuleProgress(ctx.Request().Context(), studentID, moduleID)
	if err != nil {
		return errors.Wrap(err, "getting module progress")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *progressionApi) recordLessonProgress(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	lessonID, err := pathInt(ctx, "lid")
	if err != nil {
		return err
	}

	var data progression.NewLessonProgress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLessonProgress")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	view, err := api.svc.RecordLessonProgress(ctx.Request().Context(), studentID, lessonID, data)
	if err != nil {
		return errors.Wrap(err, "recording lesson progress")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *progressionApi) submitAttempt(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	assessmentID, err := pathInt(ctx, "aid")
	if err != nil {
		return err
	}

	var data progression.NewAttempt
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttempt")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.SubmitAttempt(ctx.Request().Context(), studentID, assessmentID, data)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *progressionApi) gradeAttempt(ctx echo.Context) error {
	attemptID, err := pathInt(ctx, "id")
	if err != nil {
		return err
	}

	var data progression.AttemptGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttemptGrade")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.GradeAttempt(ctx.Request().Context(), attemptID, data)
	if err != nil {
		return errors.Wrap(err, "grading attempt")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *progressionApi) attemptsRemaining(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	assessmentID, err := pathInt(ctx, "aid")
	if err != nil {
		return err
	}

	n, err := api.svc.AttemptsRemaining(ctx.Request().Context(), studentID, assessmentID)
	if err != nil {
		return errors.Wrap(err, "getting attempts remaining")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"attempts_remaining": n})
}

func (api *progressionApi) attemptHistory(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	moduleID, err := pathInt(ctx, "mid")
	if err != nil {
		return err
	}

	atts, err := api.svc.AttemptHistory(ctx.Request().Context(), studentID, moduleID)
	if err != nil {
		return errors.Wrap(err, "getting attempt history")
	}
	if atts == nil {
		atts = []progression.AssessmentAttempt{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *progressionApi) requestRetake(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	moduleID, err := pathInt(ctx, "mid")
	if err != nil {
		return err
	}

	view, err := api.svc.RequestRetake(ctx.Request().Context(), studentID, moduleID)
	if err != nil {
		return errors.Wrap(err, "requesting retake")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *progressionApi) courseScore(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	courseID, err := pathInt(ctx, "cid")
	if err != nil {
		return err
	}

	cs, err := api.svc.CourseScore(ctx.Request().Context(), studentID, courseID)
	if err != nil {
		return errors.Wrap(err, "getting course score")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"course_score": cs})
}

func (api *progressionApi) courseProgress(ctx echo.Context) error {
	studentID, err := pathInt(ctx, "sid")
	if err != nil {
		return err
	}
	courseID, err := pathInt(ctx, "cid")
	if err != nil {
		return err
	}

	view, err := api.svc.CourseProgress(ctx.Request().Context(), studentID, courseID)
	if err != nil {
		return errors.Wrap(err, "getting course progress")
	}
	return ctx.JSON(http.StatusOK, view)
}
