package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/schedule"
)

type MyAttendanceResponse struct {
	Records     []attendance.Record  `json:"records,omitempty"`
	Summary     *attendance.Summary  `json:"summary,omitempty"`
	CheckIns    []attendance.CheckIn `json:"checkIns,omitempty"`
	PresentDays *int                 `json:"presentDays,omitempty"`
}

type attendanceApi struct {
	svc      *attendance.Service
	schedule *schedule.Service
	loc      *time.Location
}

func registerAttendanceAPI(g *echo.Group, svc *attendance.Service, sched *schedule.Service, loc *time.Location) {
	api := attendanceApi{svc: svc, schedule: sched, loc: loc}

	ag := g.Group("/attendance")
	ag.POST("", api.record, requireAction(member.ActionTakeAttendance))
	ag.GET("/summary", api.summary, requireAction(member.ActionAttendanceReports, member.ActionTakeAttendance))
	ag.GET("/marks", api.marks, requireAction(member.ActionTakeAttendance))
	ag.GET("/mine", api.mine, requireAction(member.ActionMyAttendance, member.ActionTrainerStudentAttendance))

	g.POST("/checkins", api.checkIn, requireAction(member.ActionCheckIn))
}

// trainerScope returns the trainer whose classes the session may see: trainers only see their own.
func trainerScope(role member.Role, requested string) string {
	if role.Kind == member.KindTrainer {
		return role.Identity.UID
	}
	return requested
}

// Handlers

func (api *attendanceApi) record(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data AttendanceRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceRequest")
	}

	reqCtx, inst := ctx.Request().Context(), sess.Role.InstituteID
	slot, err := api.schedule.GetSlot(reqCtx, inst, schedule.Day(data.Day), schedule.Time(data.Time))
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(nil, core.FieldError{Field: "time", Error: "there is no class in this slot"})
		}
		return errors.Wrap(err, "getting slot")
	}
	if sess.Role.Kind == member.KindTrainer && slot.TrainerID != sess.Identity.UID {
		return errHttpForbidden
	}

	na := attendance.NewAttendance{Date: data.Date, Marks: data.Marks}
	if core.CleanString(na.Date) == "" {
		na.Date = core.Today(api.loc)
	}
	res, err := api.svc.RecordAttendance(reqCtx, inst, slot, na)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var f Filters
	f.Bind(ctx)
	f.TrainerID = trainerScope(sess.Role, f.TrainerID)
	if err = f.require(trainerParam, categoryParam); err != nil {
		return err
	}

	reqCtx, inst := ctx.Request().Context(), sess.Role.InstituteID
	if f.StudentID != "" {
		sum, err := api.svc.SummaryFor(reqCtx, inst, f.TrainerID, f.Category, f.StudentID)
		if err != nil {
			return errors.Wrap(err, "summarizing student attendance")
		}
		return ctx.JSON(http.StatusOK, sum)
	}
	sums, err := api.svc.Summarize(reqCtx, inst, f.TrainerID, f.Category)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, sums)
}

func (api *attendanceApi) marks(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var f Filters
	f.Bind(ctx)
	f.TrainerID = trainerScope(sess.Role, f.TrainerID)
	if f.Date == "" {
		f.Date = core.Today(api.loc)
	}
	if err = f.require(trainerParam, categoryParam); err != nil {
		return err
	}

	marks, err := api.svc.MarksOn(ctx.Request().Context(), sess.Role.InstituteID, f.TrainerID, f.Category, f.Date)
	if err != nil {
		return errors.Wrap(err, "getting marks")
	}
	return ctx.JSON(http.StatusOK, marks)
}

func (api *attendanceApi) mine(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	reqCtx, inst, uid := ctx.Request().Context(), sess.Role.InstituteID, sess.Identity.UID

	var resp MyAttendanceResponse
	if sess.Role.Kind == member.KindTrainer {
		var f Filters
		f.Bind(ctx)
		if f.Month == "" {
			f.Month = core.NowFunc().In(api.loc).Format(core.MonthLayout)
		}
		if resp.CheckIns, err = api.svc.TrainerCheckIns(reqCtx, inst, uid, f.Month); err != nil {
			return errors.Wrap(err, "listing check-ins")
		}
		days, err := api.svc.TrainerPresentDays(reqCtx, inst, uid, f.Month)
		if err != nil {
			return errors.Wrap(err, "counting present days")
		}
		resp.PresentDays = &days
		return ctx.JSON(http.StatusOK, resp)
	}

	if resp.Records, err = api.svc.StudentHistory(reqCtx, inst, uid); err != nil {
		return errors.Wrap(err, "getting attendance history")
	}
	sum := attendance.Summarize(resp.Records)[uid]
	resp.Summary = &sum
	return ctx.JSON(http.StatusOK, resp)
}

func (api *attendanceApi) checkIn(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data attendance.NewCheckIn
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCheckIn")
	}
	if core.CleanString(data.Date) == "" {
		data.Date = core.Today(api.loc)
	}
	ci, err := api.svc.CheckIn(ctx.Request().Context(), sess.Role.InstituteID, sess.Identity.UID, data)
	if err != nil {
		return errors.Wrap(err, "checking in")
	}
	return ctx.JSON(http.StatusOK, ci)
}
