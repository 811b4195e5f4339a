package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/schedule"
)

type TimetableResponse struct {
	Days  []schedule.Day  `json:"days"`
	Times []schedule.Time `json:"times"`
	Slots []schedule.Slot `json:"slots"`
	Grid  schedule.Grid   `json:"grid"`
}

func newTimetableResponse(slots []schedule.Slot) TimetableResponse {
	if slots == nil {
		slots = []schedule.Slot{}
	}
	return TimetableResponse{Days: schedule.Days, Times: schedule.Times, Slots: slots, Grid: schedule.NewGrid(slots)}
}

type timetableApi struct {
	svc *schedule.Service
}

func registerTimetableAPI(g *echo.Group, svc *schedule.Service) {
	api := timetableApi{svc: svc}

	view := requireAction(
		member.ActionManageTimetable, member.ActionStudentTimetable,
		member.ActionTrainerTimetable, member.ActionTakeAttendance,
	)

	tg := g.Group("/timetable")
	tg.GET("", api.query, view)
	tg.PUT("", api.upsert, requireAction(member.ActionManageTimetable))
	tg.GET("/mine", api.mine, requireAction(member.ActionStudentTimetable, member.ActionTrainerTimetable))
	tg.GET("/:day/:time", api.retrieve, view)
}

// Handlers

func (api *timetableApi) query(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	slots, err := api.svc.ListSlots(ctx.Request().Context(), sess.Role.InstituteID)
	if err != nil {
		return errors.Wrap(err, "listing slots")
	}
	return ctx.JSON(http.StatusOK, newTimetableResponse(slots))
}

func (api *timetableApi) upsert(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data schedule.NewSlot
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSlot")
	}
	slot, err := api.svc.UpsertSlot(ctx.Request().Context(), sess.Role.InstituteID, data)
	if err != nil {
		return errors.Wrap(err, "upserting slot")
	}
	return ctx.JSON(http.StatusOK, slot)
}

func (api *timetableApi) mine(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	reqCtx, inst, uid := ctx.Request().Context(), sess.Role.InstituteID, sess.Identity.UID

	var slots []schedule.Slot
	if sess.Role.Kind == member.KindTrainer {
		slots, err = api.svc.TrainerSlots(reqCtx, inst, uid)
	} else {
		slots, err = api.svc.StudentSlots(reqCtx, inst, uid)
	}
	if err != nil {
		return errors.Wrap(err, "listing own slots")
	}
	return ctx.JSON(http.StatusOK, newTimetableResponse(slots))
}

func (api *timetableApi) retrieve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	day, t := schedule.Day(ctx.Param("day")), schedule.Time(ctx.Param("time"))
	if !day.Valid() || !t.Valid() {
		return core.ErrNotFound
	}
	slot, err := api.svc.GetSlot(ctx.Request().Context(), sess.Role.InstituteID, day, t)
	if err != nil {
		return errors.Wrap(err, "getting slot")
	}
	return ctx.JSON(http.StatusOK, slot)
}
