package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/billing"
)

// query params
const (
	trainerParam  = "trainerId"
	studentParam  = "studentId"
	categoryParam = "category"
	dateParam     = "date"
	monthParam    = "month"
)

// Filters are the (optional) query filters shared by the list endpoints.
type Filters struct {
	TrainerID string
	StudentID string
	Category  string
	Date      string
	Month     string
}

func (f *Filters) Bind(ctx echo.Context) {
	f.TrainerID = core.CleanString(ctx.QueryParam(trainerParam))
	f.StudentID = core.CleanString(ctx.QueryParam(studentParam))
	f.Category = core.CleanString(ctx.QueryParam(categoryParam))
	f.Date = core.CleanString(ctx.QueryParam(dateParam))
	f.Month = core.CleanString(ctx.QueryParam(monthParam))
}

// require returns a ValidationError naming every empty param.
func (f *Filters) require(params ...string) error {
	values := map[string]string{
		trainerParam:  f.TrainerID,
		studentParam:  f.StudentID,
		categoryParam: f.Category,
		dateParam:     f.Date,
		monthParam:    f.Month,
	}
	var flds []core.FieldError
	for _, p := range params {
		if values[p] == "" {
			flds = append(flds, core.FieldError{Field: p, Error: "this field is required"})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

type (
	AttendanceRequest struct {
		Day  string `json:"day"`
		Time string `json:"time"`
		// Date defaults to today.
		Date  string                       `json:"date"`
		Marks map[string]attendance.Status `json:"marks"`
	}

	SalaryRequest struct {
		TrainerID string `json:"trainerId"`
		Month     string `json:"month"`
	}

	PaymentRequest struct {
		Mode string `json:"mode"`
	}

	BulkSalaryResponse struct {
		billing.BulkResult
		Failed map[string]string `json:"failed,omitempty"`
	}
)
