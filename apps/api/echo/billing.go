package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
)

type billingApi struct {
	svc *billing.Service
}

func registerBillingAPI(g *echo.Group, svc *billing.Service) {
	api := billingApi{svc: svc}
	writeFees := requireAction(member.ActionManageFees, member.ActionTrainerFees)
	manageSalaries := requireAction(member.ActionManageSalaries)

	fg := g.Group("/fees")
	fg.POST("", api.createFee, writeFees)
	fg.GET("", api.queryFees, requireAction(
		member.ActionManageFees, member.ActionTrainerFees, member.ActionFeeDetails, member.ActionTrainerStudentFees,
	))
	fg.POST("/:id/paid", api.payFee, writeFees)
	fg.DELETE("/:id", api.destroyFee, writeFees)

	sg := g.Group("/salaries", manageSalaries)
	sg.POST("", api.createSalary)
	sg.POST("/all", api.createAllSalaries)
	sg.GET("", api.querySalaries)
	sg.GET("/status", api.salaryStatus)
	sg.POST("/:id/paid", api.paySalary)
}

// Handlers

func (api *billingApi) createFee(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data billing.NewFee
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFee")
	}
	var fee billing.Fee
	if sess.Role.Can(member.ActionManageFees) {
		fee, err = api.svc.GenerateFee(ctx.Request().Context(), sess.Role.InstituteID, data)
	} else {
		fee, err = api.svc.GenerateTrainerFee(ctx.Request().Context(), sess.Identity.UID, data)
	}
	if err != nil {
		return errors.Wrap(err, "generating fee")
	}
	return ctx.JSON(http.StatusCreated, fee)
}

// queryFees lists every fee (optionally of ?studentId) for the institute, the fees of their own students
// for a trainer, and the own fees for students.
func (api *billingApi) queryFees(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var f Filters
	f.Bind(ctx)

	rctx := ctx.Request().Context()
	var fees []billing.Fee
	switch role := sess.Role; {
	case role.Can(member.ActionManageFees):
		fees, err = api.svc.ListFees(rctx, role.InstituteID, f.StudentID)
	case role.Can(member.ActionTrainerFees):
		fees, err = api.svc.ListTrainerFees(rctx, sess.Identity.UID, f.StudentID)
	case role.TrainerStudent != nil:
		fees, err = api.svc.ListTrainerFees(rctx, role.TrainerStudent.TrainerUID, sess.Identity.UID)
	default:
		fees, err = api.svc.ListFees(rctx, role.InstituteID, sess.Identity.UID)
	}
	if err != nil {
		return errors.Wrap(err, "listing fees")
	}
	if fees == nil {
		fees = []billing.Fee{}
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *billingApi) payFee(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var fee billing.Fee
	if sess.Role.Can(member.ActionManageFees) {
		fee, err = api.svc.MarkFeePaid(ctx.Request().Context(), sess.Role.InstituteID, ctx.Param("id"))
	} else {
		fee, err = api.svc.MarkTrainerFeePaid(ctx.Request().Context(), sess.Identity.UID, ctx.Param("id"))
	}
	if err != nil {
		return errors.Wrap(err, "marking fee paid")
	}
	return ctx.JSON(http.StatusOK, fee)
}

func (api *billingApi) destroyFee(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if sess.Role.Can(member.ActionManageFees) {
		err = api.svc.DeleteFee(ctx.Request().Context(), sess.Role.InstituteID, ctx.Param("id"))
	} else {
		err = api.svc.DeleteTrainerFee(ctx.Request().Context(), sess.Identity.UID, ctx.Param("id"))
	}
	if err != nil {
		return errors.Wrap(err, "deleting fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) createSalary(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data SalaryRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SalaryRequest")
	}
	sal, err := api.svc.GenerateSalary(ctx.Request().Context(), sess.Role.InstituteID, data.TrainerID, data.Month)
	if err != nil {
		return errors.Wrap(err, "generating salary")
	}
	return ctx.JSON(http.StatusCreated, sal)
}

// createAllSalaries answers 207 with the generated salaries and the failures when only some trainers failed.
func (api *billingApi) createAllSalaries(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data SalaryRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SalaryRequest")
	}

	res, err := api.svc.GenerateAllSalaries(ctx.Request().Context(), sess.Role.InstituteID, data.Month)
	var partial *core.PartialWriteError
	switch {
	case errors.As(err, &partial):
		return ctx.JSON(http.StatusMultiStatus, BulkSalaryResponse{
			BulkResult: res,
			Failed:     newPartialWriteResponse(partial).Failed,
		})
	case err != nil:
		return errors.Wrap(err, "generating salaries")
	}
	return ctx.JSON(http.StatusCreated, BulkSalaryResponse{BulkResult: res})
}

func (api *billingApi) querySalaries(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var f Filters
	f.Bind(ctx)
	sals, err := api.svc.ListSalaries(ctx.Request().Context(), sess.Role.InstituteID, f.Month)
	if err != nil {
		return errors.Wrap(err, "listing salaries")
	}
	if sals == nil {
		sals = []billing.Salary{}
	}
	return ctx.JSON(http.StatusOK, sals)
}

func (api *billingApi) salaryStatus(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var f Filters
	f.Bind(ctx)
	if err = f.require(trainerParam, monthParam); err != nil {
		return err
	}
	status, err := api.svc.SalaryStatus(ctx.Request().Context(), sess.Role.InstituteID, f.TrainerID, f.Month)
	if err != nil {
		return errors.Wrap(err, "getting salary status")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": status})
}

func (api *billingApi) paySalary(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data PaymentRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentRequest")
	}
	sal, err := api.svc.MarkSalaryPaid(ctx.Request().Context(), sess.Role.InstituteID, ctx.Param("id"), data.Mode)
	if err != nil {
		return errors.Wrap(err, "marking salary paid")
	}
	return ctx.JSON(http.StatusOK, sal)
}
