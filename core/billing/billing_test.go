package billing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/member"
	inmemstore "github.com/trezcool/sportshub/storage/docstore/inmem"
)

const inst = "inst-1"

var now = time.Date(2024, 7, 3, 9, 30, 0, 0, time.UTC)

type mailbox struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailbox) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

type fixture struct {
	svc   *Service
	att   *attendance.Service
	dir   *member.Directory
	store *inmemstore.Store
	mail  *mailbox
}

func newFixture(t *testing.T) fixture {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })

	st := inmemstore.New()
	validate := core.NewValidator()
	dir := member.NewDirectory(st, validate)
	att := attendance.NewService(st, validate, attendance.Options{})
	mb := new(mailbox)
	svc := NewService(st, validate, dir, att, Options{Mailer: mb})

	ctx := context.Background()
	require.NoError(t, dir.SaveStudent(ctx, member.Student{UID: "s1", InstituteID: inst, FirstName: "Asha", Email: "asha@mail.com", FeeAmount: 2000}))
	require.NoError(t, dir.SaveStudent(ctx, member.Student{UID: "s2", InstituteID: inst, FirstName: "Bala"}))
	require.NoError(t, dir.SaveTrainer(ctx, member.Trainer{UID: "t1", InstituteID: inst, FirstName: "Ravi", Email: "ravi@mail.com", MonthlySalary: 30000}))
	require.NoError(t, dir.SaveTrainer(ctx, member.Trainer{UID: "t2", InstituteID: inst, FirstName: "Sita", MonthlySalary: 31000}))
	require.NoError(t, dir.SaveTrainerStudent(ctx, member.TrainerStudent{UID: "ts1", TrainerUID: "t1", FirstName: "Mira", Email: "mira@mail.com", FeeAmount: 2000}))
	require.NoError(t, dir.SaveTrainerStudent(ctx, member.TrainerStudent{UID: "ts2", TrainerUID: "t2", FirstName: "Nila"}))

	return fixture{svc: svc, att: att, dir: dir, store: st, mail: mb}
}

func (f fixture) checkIn(t *testing.T, trainerID, month string, presentDays int) {
	for d := 1; d <= presentDays; d++ {
		date := fmt.Sprintf("%s-%02d", month, d)
		_, err := f.att.CheckIn(context.Background(), inst, trainerID, attendance.NewCheckIn{Date: date, Status: attendance.Present})
		require.NoError(t, err)
	}
}

func TestFinalAmount(t *testing.T) {
	tests := []struct {
		base, discount, extra, want float64
	}{
		{2000, 200, 50, 1850},
		{1000, 0, 0, 1000},
		{1000, 1000, 0, 0},
		{1500, 500, 250, 1250},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FinalAmount(tt.base, tt.discount, tt.extra))
	}
}

func TestComputeSalary(t *testing.T) {
	tests := []struct {
		name                string
		monthly             float64
		total, present      int
		wantPerDay, wantPay float64
	}{
		{name: "example", monthly: 30000, total: 30, present: 25, wantPerDay: 1000, wantPay: 25000},
		{name: "full month", monthly: 31000, total: 31, present: 31, wantPerDay: 1000, wantPay: 31000},
		{name: "no attendance", monthly: 30000, total: 30, present: 0, wantPerDay: 1000, wantPay: 0},
		{name: "rounded", monthly: 10000, total: 31, present: 10, wantPerDay: 10000.0 / 31, wantPay: 3226},
		{name: "capped", monthly: 28000, total: 28, present: 40, wantPerDay: 1000, wantPay: 28000},
		{name: "no days", monthly: 28000, total: 0, present: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perDay, payable := ComputeSalary(tt.monthly, tt.total, tt.present)
			assert.InDelta(t, tt.wantPerDay, perDay, 1e-9)
			assert.Equal(t, tt.wantPay, payable)
		})
	}
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		month string
		want  int
	}{
		{"2024-01", 31},
		{"2024-02", 29},
		{"2023-02", 28},
		{"2024-04", 30},
		{"2024-12", 31},
	}
	for _, tt := range tests {
		got, err := DaysInMonth(tt.month)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.month)
	}
	_, err := DaysInMonth("2024-13")
	assert.Error(t, err)
}

func TestReceiptNumber(t *testing.T) {
	rx := regexp.MustCompile(`^TRN-\d{4}\d{1,2}-\d{4}$`)
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		r := ReceiptNumber("TRN", now, rnd)
		assert.Regexp(t, rx, r)
		assert.True(t, strings.HasPrefix(r, "TRN-20247-"), r)
	}
	assert.True(t, strings.HasPrefix(ReceiptNumber("TRN", time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), nil), "TRN-202411-"))
}

func TestService_GenerateFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fee, err := f.svc.GenerateFee(ctx, inst, NewFee{StudentID: "s1", Month: 6, Year: 2024, BaseFee: 2000, Discount: 200, ExtraCharges: 50, PaymentMode: ModeCash})
	require.NoError(t, err)
	assert.NotEmpty(t, fee.ID)
	assert.Equal(t, 1850.0, fee.FinalAmount)
	assert.Equal(t, FeePending, fee.Status)
	assert.Equal(t, "Asha", fee.StudentName)
	assert.Regexp(t, `^TRN-20247-\d{4}$`, fee.ReceiptNo)
	assert.Nil(t, fee.PaidAt)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "asha@mail.com", f.mail.sent[0].To[0].Address)
	assert.Equal(t, "fee_receipt", f.mail.sent[0].TemplateName)

	// same period is refused, nothing is written
	_, err = f.svc.GenerateFee(ctx, inst, NewFee{StudentID: "s1", Month: 6, Year: 2024, BaseFee: 999, PaymentMode: ModeUPI})
	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, errors.Is(err, ErrFeeExists))

	fees, err := f.svc.ListFees(ctx, inst, "s1")
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, 2000.0, fees[0].BaseFee)

	// another period, or another student, is fine
	_, err = f.svc.GenerateFee(ctx, inst, NewFee{StudentID: "s1", Month: 6, Year: 2025, BaseFee: 2000, PaymentMode: ModeCard})
	require.NoError(t, err)
	_, err = f.svc.GenerateFee(ctx, inst, NewFee{StudentID: "s2", Month: 6, Year: 2024, BaseFee: 2000, PaymentMode: ModeBank})
	require.NoError(t, err)
	assert.Len(t, f.mail.sent, 2, "no email on file for s2")
}

func TestService_GenerateFee_Validation(t *testing.T) {
	valid := NewFee{StudentID: "s1", Month: 6, Year: 2024, BaseFee: 2000, Discount: 200, ExtraCharges: 50, PaymentMode: ModeCash}
	tests := []struct {
		name   string
		mutate func(nf *NewFee)
	}{
		{name: "month zero", mutate: func(nf *NewFee) { nf.Month = 0 }},
		{name: "month 13", mutate: func(nf *NewFee) { nf.Month = 13 }},
		{name: "no base fee", mutate: func(nf *NewFee) { nf.BaseFee = 0 }},
		{name: "negative base fee", mutate: func(nf *NewFee) { nf.BaseFee = -5 }},
		{name: "negative discount", mutate: func(nf *NewFee) { nf.Discount = -1 }},
		{name: "discount above base", mutate: func(nf *NewFee) { nf.Discount = 2001 }},
		{name: "negative extra", mutate: func(nf *NewFee) { nf.ExtraCharges = -1 }},
		{name: "unknown mode", mutate: func(nf *NewFee) { nf.PaymentMode = "Cheque" }},
		{name: "no student", mutate: func(nf *NewFee) { nf.StudentID = " " }},
		{name: "unknown student", mutate: func(nf *NewFee) { nf.StudentID = "ghost" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			nf := valid
			tt.mutate(&nf)
			_, err := f.svc.GenerateFee(context.Background(), inst, nf)
			require.Error(t, err)
			assert.True(t, core.IsValidationError(err), "%+v", err)

			fees, err := f.svc.ListFees(context.Background(), inst, "")
			require.NoError(t, err)
			assert.Empty(t, fees)
		})
	}
}

func TestService_FeeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []struct{ month, year int }{{3, 2024}, {11, 2023}, {12, 2024}, {1, 2024}} {
		_, err := f.svc.GenerateFee(ctx, inst, NewFee{StudentID: "s1", Month: p.month, Year: p.year, BaseFee: 2000, PaymentMode: ModeCash})
		require.NoError(t, err)
	}

	fees, err := f.svc.ListFees(ctx, inst, "s1")
	require.NoError(t, err)
	require.Len(t, fees, 4)
	periods := make([]string, 0, 4)
	for _, fee := range fees {
		periods = append(periods, fee.Period())
	}
	assert.Equal(t, []string{"December 2024", "March 2024", "January 2024", "November 2023"}, periods)

	paid, err := f.svc.MarkFeePaid(ctx, inst, fees[0].ID)
	require.NoError(t, err)
	assert.Equal(t, FeePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paid.PaidAt.Equal(now))
	assert.Equal(t, "Fee paid - December 2024", f.mail.sent[len(f.mail.sent)-1].Subject)

	_, err = f.svc.MarkFeePaid(ctx, inst, fees[0].ID)
	assert.True(t, errors.Is(err, ErrFeeAlreadyPaid))

	_, err = f.svc.MarkFeePaid(ctx, inst, "nope")
	assert.True(t, core.IsNotFound(err))

	// any status can be deleted
	require.NoError(t, f.svc.DeleteFee(ctx, inst, fees[0].ID))
	require.NoError(t, f.svc.DeleteFee(ctx, inst, fees[1].ID))
	assert.True(t, core.IsNotFound(f.svc.DeleteFee(ctx, inst, fees[1].ID)))

	fees, err = f.svc.ListFees(ctx, inst, "s1")
	require.NoError(t, err)
	assert.Len(t, fees, 2)
}

func TestService_TrainerFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fee, err := f.svc.GenerateTrainerFee(ctx, "t1", NewFee{StudentID: "ts1", Month: 6, Year: 2024, BaseFee: 2000, PaymentMode: ModeCash})
	require.NoError(t, err)
	assert.NotEmpty(t, fee.ID)
	assert.Equal(t, "t1", fee.TrainerID)
	assert.Equal(t, "ts1", fee.StudentID)
	assert.Equal(t, "Mira", fee.StudentName)
	assert.Equal(t, 2000.0, fee.FinalAmount)
	assert.Equal(t, FeePending, fee.Status)
	assert.Regexp(t, `^TRN-20247-\d{4}$`, fee.ReceiptNo)
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "mira@mail.com", f.mail.sent[0].To[0].Address)

	// same period is refused
	_, err = f.svc.GenerateTrainerFee(ctx, "t1", NewFee{StudentID: "ts1", Month: 6, Year: 2024, BaseFee: 1500, PaymentMode: ModeUPI})
	assert.True(t, errors.Is(err, ErrFeeExists))

	// students of another trainer, and institute students, are unknown to t1
	for _, sid := range []string{"ts2", "s1", "ghost"} {
		_, err = f.svc.GenerateTrainerFee(ctx, "t1", NewFee{StudentID: sid, Month: 6, Year: 2024, BaseFee: 2000, PaymentMode: ModeCash})
		assert.True(t, core.IsValidationError(err), sid)
	}

	// trainer fees stay out of the institute books and out of other trainers' books
	fees, err := f.svc.ListFees(ctx, inst, "")
	require.NoError(t, err)
	assert.Empty(t, fees)
	fees, err = f.svc.ListTrainerFees(ctx, "t2", "")
	require.NoError(t, err)
	assert.Empty(t, fees)
	_, err = f.svc.MarkTrainerFeePaid(ctx, "t2", fee.ID)
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(f.svc.DeleteTrainerFee(ctx, "t2", fee.ID)))

	fees, err = f.svc.ListTrainerFees(ctx, "t1", "ts1")
	require.NoError(t, err)
	require.Len(t, fees, 1)

	paid, err := f.svc.MarkTrainerFeePaid(ctx, "t1", fee.ID)
	require.NoError(t, err)
	assert.Equal(t, FeePaid, paid.Status)
	assert.Equal(t, "Fee paid - June 2024", f.mail.sent[len(f.mail.sent)-1].Subject)
	_, err = f.svc.MarkTrainerFeePaid(ctx, "t1", fee.ID)
	assert.True(t, errors.Is(err, ErrFeeAlreadyPaid))

	require.NoError(t, f.svc.DeleteTrainerFee(ctx, "t1", fee.ID))
	fees, err = f.svc.ListTrainerFees(ctx, "t1", "")
	require.NoError(t, err)
	assert.Empty(t, fees)
}

func TestService_GenerateSalary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.checkIn(t, "t1", "2024-06", 25)

	sal, err := f.svc.GenerateSalary(ctx, inst, "t1", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, "t1_2024-06", sal.ID)
	assert.Equal(t, 30, sal.TotalDays)
	assert.Equal(t, 25, sal.PresentDays)
	assert.Equal(t, 5, sal.AbsentDays)
	assert.Equal(t, 1000.0, sal.PerDaySalary)
	assert.Equal(t, 25000.0, sal.PayableSalary)
	assert.Equal(t, SalaryGenerated, sal.Status)
	assert.Equal(t, sal.TotalDays, sal.PresentDays+sal.AbsentDays)

	// regeneration replaces the record
	f.checkIn(t, "t1", "2024-06", 27)
	sal, err = f.svc.GenerateSalary(ctx, inst, "t1", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, 27, sal.PresentDays)
	assert.Equal(t, 27000.0, sal.PayableSalary)

	sals, err := f.svc.ListSalaries(ctx, inst, "2024-06")
	require.NoError(t, err)
	require.Len(t, sals, 1)
	assert.Equal(t, 27, sals[0].PresentDays)

	status, err := f.svc.SalaryStatus(ctx, inst, "t1", "2024-06")
	require.NoError(t, err)
	assert.Equal(t, SalaryGenerated, status)
	status, err = f.svc.SalaryStatus(ctx, inst, "t1", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, SalaryPending, status)

	paid, err := f.svc.MarkSalaryPaid(ctx, inst, sal.ID, "")
	require.NoError(t, err)
	assert.Equal(t, SalaryPaid, paid.Status)
	assert.Equal(t, ModeCash, paid.PaymentMode)
	require.NotNil(t, paid.PaidAt)
	require.NotEmpty(t, f.mail.sent)
	assert.Equal(t, "salary_slip", f.mail.sent[len(f.mail.sent)-1].TemplateName)

	_, err = f.svc.MarkSalaryPaid(ctx, inst, sal.ID, ModeUPI)
	assert.True(t, errors.Is(err, ErrSalaryPaid))

	// a paid salary is never regenerated
	_, err = f.svc.GenerateSalary(ctx, inst, "t1", "2024-06")
	var conflict *core.ConflictError
	assert.True(t, errors.As(err, &conflict))
}

func TestService_GenerateSalary_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateSalary(ctx, inst, "t1", "June 2024")
	assert.True(t, core.IsValidationError(err))
	_, err = f.svc.GenerateSalary(ctx, inst, "", "2024-06")
	assert.True(t, core.IsValidationError(err))
	_, err = f.svc.GenerateSalary(ctx, inst, "ghost", "2024-06")
	assert.True(t, core.IsNotFound(err))
	_, err = f.svc.MarkSalaryPaid(ctx, inst, "t1_2024-06", "Cheque")
	assert.True(t, core.IsValidationError(err))
}

func TestService_GenerateAllSalaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.checkIn(t, "t1", "2024-06", 30)
	f.checkIn(t, "t2", "2024-06", 15)

	res, err := f.svc.GenerateAllSalaries(ctx, inst, "2024-06")
	require.NoError(t, err)
	assert.Len(t, res.Generated, 2)
	assert.Empty(t, res.Skipped)

	_, err = f.svc.MarkSalaryPaid(ctx, inst, "t2_2024-06", ModeBank)
	require.NoError(t, err)
	res, err = f.svc.GenerateAllSalaries(ctx, inst, "2024-06")
	require.NoError(t, err)
	assert.Len(t, res.Generated, 1)
	assert.Equal(t, []string{"t2"}, res.Skipped)

	// one trainer fails, the other goes through
	f.store.FailOn(func(op, coll, id string) error {
		if id == "t1_2024-05" && op == "batch" {
			return errors.New("write rejected")
		}
		return nil
	})
	res, err = f.svc.GenerateAllSalaries(ctx, inst, "2024-05")
	var partial *core.PartialWriteError
	require.True(t, errors.As(err, &partial), "%v", err)
	assert.Equal(t, []string{"t2"}, partial.Done)
	assert.Contains(t, partial.Failed, "t1")
	assert.Len(t, res.Generated, 1)

	// everything fails: the failure itself is returned
	f.store.FailOn(func(op, coll, id string) error {
		if op == "batch" {
			return errors.New("write rejected")
		}
		return nil
	})
	_, err = f.svc.GenerateAllSalaries(ctx, inst, "2024-04")
	require.Error(t, err)
	assert.False(t, errors.As(err, &partial))
	var serr *core.StoreError
	assert.True(t, errors.As(err, &serr))
}
