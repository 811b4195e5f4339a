package billing

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/trezcool/sportshub/core"
)

type FeeStatus string

const (
	FeePending FeeStatus = "pending"
	FeePaid    FeeStatus = "paid"
)

type SalaryStatus string

const (
	// SalaryPending is reported for a trainer and month with no salary record yet. It is never stored.
	SalaryPending   SalaryStatus = "pending"
	SalaryGenerated SalaryStatus = "generated"
	SalaryPaid      SalaryStatus = "paid"
)

// Payment modes
const (
	ModeCash = "Cash"
	ModeUPI  = "UPI"
	ModeCard = "Card"
	ModeBank = "Bank"
)

// Fee is a student's fee for one month of one year.
type Fee struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"studentId"`
	StudentName  string     `json:"studentName"`
	TrainerID    string     `json:"trainerId,omitempty"`
	Month        int        `json:"month"` // 1..12
	Year         int        `json:"year"`
	BaseFee      float64    `json:"baseFee"`
	Discount     float64    `json:"discount"`
	ExtraCharges float64    `json:"extraCharges"`
	FinalAmount  float64    `json:"finalAmount"`
	PaymentMode  string     `json:"paymentMode"`
	ReceiptNo    string     `json:"receiptNo"`
	Status       FeeStatus  `json:"status"`
	Remarks      string     `json:"remarks,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`        // UTC
	PaidAt       *time.Time `json:"paidAt,omitempty"` // UTC
}

func (f *Fee) StampServerTime(t time.Time) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = t
	}
}

func (f *Fee) SetDocID(id string) { f.ID = id }

// Period renders the fee month as "June 2024".
func (f Fee) Period() string {
	return fmt.Sprintf("%s %d", time.Month(f.Month), f.Year)
}

// NewFee contains the information needed to generate a fee.
type NewFee struct {
	StudentID    string  `json:"studentId" validate:"required"`
	Month        int     `json:"month" validate:"required,min=1,max=12"`
	Year         int     `json:"year" validate:"required,min=2000,max=9999"`
	BaseFee      float64 `json:"baseFee" validate:"gt=0"`
	Discount     float64 `json:"discount" validate:"gte=0,ltefield=BaseFee"`
	ExtraCharges float64 `json:"extraCharges" validate:"gte=0"`
	PaymentMode  string  `json:"paymentMode" validate:"required,oneof=Cash UPI Card Bank"`
	Remarks      string  `json:"remarks"`
}

// Salary is a trainer's pay for one month. Its id is "{trainerId}_{YYYY-MM}", so regeneration replaces it.
type Salary struct {
	ID            string       `json:"id"`
	TrainerID     string       `json:"trainerId"`
	TrainerName   string       `json:"trainerName"`
	Month         string       `json:"month"` // YYYY-MM
	TotalDays     int          `json:"totalDays"`
	PresentDays   int          `json:"presentDays"`
	AbsentDays    int          `json:"absentDays"`
	MonthlySalary float64      `json:"monthlySalary"`
	PerDaySalary  float64      `json:"perDaySalary"`
	PayableSalary float64      `json:"payableSalary"`
	Status        SalaryStatus `json:"status"`
	PaymentMode   string       `json:"paymentMode,omitempty"`
	GeneratedAt   time.Time    `json:"generatedAt"`      // UTC
	PaidAt        *time.Time   `json:"paidAt,omitempty"` // UTC
}

func (s *Salary) StampServerTime(t time.Time) {
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = t
	}
}

func salaryKey(trainerID, month string) string {
	return trainerID + "_" + month
}

// BulkResult is the outcome of generating the salaries of every trainer of an institute.
type BulkResult struct {
	Generated []Salary         `json:"generated"`
	Skipped   []string         `json:"skipped"` // already paid
	Failed    map[string]error `json:"-"`
}

// FinalAmount is the amount due for a fee.
func FinalAmount(baseFee, discount, extraCharges float64) float64 {
	return baseFee - discount + extraCharges
}

// ComputeSalary returns the per-day salary and the payable salary (rounded to the unit).
// presentDays is capped to totalDays.
func ComputeSalary(monthly float64, totalDays, presentDays int) (perDay, payable float64) {
	if totalDays <= 0 {
		return 0, 0
	}
	if presentDays > totalDays {
		presentDays = totalDays
	}
	if presentDays < 0 {
		presentDays = 0
	}
	perDay = monthly / float64(totalDays)
	payable = math.Round(perDay * float64(presentDays))
	return perDay, payable
}

// DaysInMonth returns the number of days of month, formatted as YYYY-MM.
func DaysInMonth(month string) (int, error) {
	t, err := time.Parse(core.MonthLayout, month)
	if err != nil {
		return 0, err
	}
	return t.AddDate(0, 1, -1).Day(), nil
}

// ReceiptNumber builds "{prefix}-{year}{month}-{NNNN}" from the generation time; the month is not zero-padded
// and NNNN is drawn from 1000..9999.
func ReceiptNumber(prefix string, at time.Time, rnd *rand.Rand) string {
	var n int
	if rnd != nil {
		n = rnd.Intn(9000)
	} else {
		n = rand.Intn(9000)
	}
	return fmt.Sprintf("%s-%d%d-%d", prefix, at.Year(), int(at.Month()), 1000+n)
}
