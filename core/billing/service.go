package billing

import (
	"context"
	"math/rand"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
)

const (
	feesCollection     = "fees"
	salariesCollection = "salaries"

	DefaultReceiptPrefix = "TRN"
)

var (
	ErrFeeExists      = errors.New("a fee already exists for this student and period")
	ErrFeeAlreadyPaid = errors.New("this fee is already paid")
	ErrSalaryPaid     = errors.New("this salary is already paid")
)

type (
	// Directory gives access to the member profiles fees and salaries are computed from.
	Directory interface {
		Student(ctx context.Context, instituteID, uid string) (member.Student, error)
		Trainer(ctx context.Context, instituteID, uid string) (member.Trainer, error)
		Trainers(ctx context.Context, instituteID string) ([]member.Trainer, error)
		TrainerStudent(ctx context.Context, trainerUID, uid string) (member.TrainerStudent, error)
	}

	// AttendanceCounter counts the days a trainer was present in a month (YYYY-MM).
	AttendanceCounter interface {
		TrainerPresentDays(ctx context.Context, instituteID, trainerID, month string) (int, error)
	}

	Options struct {
		ReceiptPrefix string
		Mailer        core.EmailService // optional: receipts & salary slips
	}

	Service struct {
		store      core.DocStore
		validate   *validator.Validate
		directory  Directory
		attendance AttendanceCounter
		opts       Options

		rndMu sync.Mutex
		rnd   *rand.Rand
	}
)

func NewService(store core.DocStore, validate *validator.Validate, dir Directory, att AttendanceCounter, opts Options) *Service {
	if opts.ReceiptPrefix == "" {
		opts.ReceiptPrefix = DefaultReceiptPrefix
	}
	return &Service{
		store:      store,
		validate:   validate,
		directory:  dir,
		attendance: att,
		opts:       opts,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func feesColl(instituteID string) string {
	return core.InstituteCollection(instituteID, feesCollection)
}

func trainerFeesColl(trainerUID string) string {
	return core.TrainerCollection(trainerUID, feesCollection)
}

func salariesColl(instituteID string) string {
	return core.InstituteCollection(instituteID, salariesCollection)
}

func (svc *Service) receiptNumber() string {
	svc.rndMu.Lock()
	defer svc.rndMu.Unlock()
	return ReceiptNumber(svc.opts.ReceiptPrefix, core.NowFunc(), svc.rnd)
}

// Fees

// feeBook is where a fee owner keeps its fees: an institute for its students, a trainer for the
// students enrolled directly with them.
type feeBook struct {
	coll      string
	trainerID string
	payer     func(ctx context.Context, uid string) (payer, error)
}

type payer struct {
	uid, name, email string
}

func (svc *Service) instituteBook(instituteID string) feeBook {
	return feeBook{
		coll: feesColl(instituteID),
		payer: func(ctx context.Context, uid string) (payer, error) {
			s, err := svc.directory.Student(ctx, instituteID, uid)
			if err != nil {
				return payer{}, errors.Wrap(err, "loading student")
			}
			return payer{uid: s.UID, name: s.Name(), email: s.Email}, nil
		},
	}
}

func (svc *Service) trainerBook(trainerUID string) feeBook {
	return feeBook{
		coll:      trainerFeesColl(trainerUID),
		trainerID: trainerUID,
		payer: func(ctx context.Context, uid string) (payer, error) {
			s, err := svc.directory.TrainerStudent(ctx, trainerUID, uid)
			if err != nil {
				return payer{}, errors.Wrap(err, "loading trainer student")
			}
			return payer{uid: s.UID, name: s.Name(), email: s.Email}, nil
		},
	}
}

// GenerateFee creates a pending fee. A second fee for the same student, month and year is refused.
func (svc *Service) GenerateFee(ctx context.Context, instituteID string, nf NewFee) (Fee, error) {
	return svc.generateFee(ctx, svc.instituteBook(instituteID), nf)
}

// GenerateTrainerFee creates a pending fee for a student enrolled with the trainer, under the same
// rules as GenerateFee. Students of other trainers are unknown.
func (svc *Service) GenerateTrainerFee(ctx context.Context, trainerUID string, nf NewFee) (Fee, error) {
	return svc.generateFee(ctx, svc.trainerBook(trainerUID), nf)
}

func (svc *Service) generateFee(ctx context.Context, book feeBook, nf NewFee) (Fee, error) {
	nf.StudentID = core.CleanString(nf.StudentID)
	nf.Remarks = core.CleanString(nf.Remarks)
	if err := svc.validate.Struct(nf); err != nil {
		return Fee{}, err
	}

	student, err := book.payer(ctx, nf.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return Fee{}, core.NewValidationError(err, core.FieldError{Field: "studentId", Error: "unknown student"})
		}
		return Fee{}, err
	}

	var existing []Fee
	err = svc.store.Query(ctx, book.coll, []core.Filter{
		core.Where("studentId", nf.StudentID), core.Where("month", nf.Month), core.Where("year", nf.Year),
	}, &existing)
	if err != nil {
		return Fee{}, errors.Wrap(err, "checking existing fees")
	}
	if len(existing) > 0 {
		return Fee{}, core.NewConflictError(ErrFeeExists)
	}

	fee := Fee{
		StudentID:    student.uid,
		StudentName:  student.name,
		TrainerID:    book.trainerID,
		Month:        nf.Month,
		Year:         nf.Year,
		BaseFee:      nf.BaseFee,
		Discount:     nf.Discount,
		ExtraCharges: nf.ExtraCharges,
		FinalAmount:  FinalAmount(nf.BaseFee, nf.Discount, nf.ExtraCharges),
		PaymentMode:  nf.PaymentMode,
		ReceiptNo:    svc.receiptNumber(),
		Status:       FeePending,
		Remarks:      nf.Remarks,
	}
	if _, err := svc.store.Add(ctx, book.coll, &fee); err != nil {
		return Fee{}, errors.Wrap(err, "saving fee")
	}

	svc.sendFeeReceipt(student.email, student.name, fee, "Fee generated")
	return fee, nil
}

func (svc *Service) GetFee(ctx context.Context, instituteID, feeID string) (Fee, error) {
	return svc.getFee(ctx, svc.instituteBook(instituteID), feeID)
}

func (svc *Service) getFee(ctx context.Context, book feeBook, feeID string) (Fee, error) {
	var fee Fee
	if err := svc.store.Get(ctx, book.coll, feeID, &fee); err != nil {
		return Fee{}, errors.Wrap(err, "loading fee")
	}
	return fee, nil
}

// MarkFeePaid moves a pending fee to paid. Paid is terminal.
func (svc *Service) MarkFeePaid(ctx context.Context, instituteID, feeID string) (Fee, error) {
	return svc.markFeePaid(ctx, svc.instituteBook(instituteID), feeID)
}

// MarkTrainerFeePaid is MarkFeePaid for the fees of a trainer's own students.
func (svc *Service) MarkTrainerFeePaid(ctx context.Context, trainerUID, feeID string) (Fee, error) {
	return svc.markFeePaid(ctx, svc.trainerBook(trainerUID), feeID)
}

func (svc *Service) markFeePaid(ctx context.Context, book feeBook, feeID string) (Fee, error) {
	fee, err := svc.getFee(ctx, book, feeID)
	if err != nil {
		return Fee{}, err
	}
	if fee.Status == FeePaid {
		return Fee{}, core.NewValidationError(ErrFeeAlreadyPaid, core.FieldError{Field: "status", Error: ErrFeeAlreadyPaid.Error()})
	}
	err = svc.store.Update(ctx, book.coll, feeID, map[string]interface{}{
		"status": FeePaid,
		"paidAt": core.ServerTimestamp,
	})
	if err != nil {
		return Fee{}, errors.Wrap(err, "marking fee paid")
	}
	if fee, err = svc.getFee(ctx, book, feeID); err != nil {
		return Fee{}, err
	}

	if student, err := book.payer(ctx, fee.StudentID); err == nil {
		svc.sendFeeReceipt(student.email, student.name, fee, "Fee paid")
	}
	return fee, nil
}

// DeleteFee removes a fee whatever its status.
func (svc *Service) DeleteFee(ctx context.Context, instituteID, feeID string) error {
	return svc.deleteFee(ctx, svc.instituteBook(instituteID), feeID)
}

func (svc *Service) DeleteTrainerFee(ctx context.Context, trainerUID, feeID string) error {
	return svc.deleteFee(ctx, svc.trainerBook(trainerUID), feeID)
}

func (svc *Service) deleteFee(ctx context.Context, book feeBook, feeID string) error {
	if _, err := svc.getFee(ctx, book, feeID); err != nil {
		return err
	}
	return errors.Wrap(svc.store.Delete(ctx, book.coll, feeID), "deleting fee")
}

// ListFees returns the fees of a student (or of every student when studentID is empty), newest period first.
func (svc *Service) ListFees(ctx context.Context, instituteID, studentID string) ([]Fee, error) {
	return svc.listFees(ctx, svc.instituteBook(instituteID), studentID)
}

// ListTrainerFees returns the fees a trainer generated, for one of their students when studentID is set.
func (svc *Service) ListTrainerFees(ctx context.Context, trainerUID, studentID string) ([]Fee, error) {
	return svc.listFees(ctx, svc.trainerBook(trainerUID), studentID)
}

func (svc *Service) listFees(ctx context.Context, book feeBook, studentID string) ([]Fee, error) {
	var filters []core.Filter
	if studentID != "" {
		filters = append(filters, core.Where("studentId", studentID))
	}
	var fees []Fee
	if err := svc.store.Query(ctx, book.coll, filters, &fees); err != nil {
		return nil, errors.Wrap(err, "listing fees")
	}
	sort.SliceStable(fees, func(i, j int) bool {
		if fees[i].Year != fees[j].Year {
			return fees[i].Year > fees[j].Year
		}
		if fees[i].Month != fees[j].Month {
			return fees[i].Month > fees[j].Month
		}
		return fees[i].CreatedAt.After(fees[j].CreatedAt)
	})
	return fees, nil
}

// Salaries

type salaryRequest struct {
	TrainerID string `json:"trainerId" validate:"required"`
	Month     string `json:"month" validate:"required,yearmonth"`
}

// GenerateSalary computes and stores a trainer's salary for month (YYYY-MM), replacing a previous
// generation. A paid salary is never replaced.
func (svc *Service) GenerateSalary(ctx context.Context, instituteID, trainerID, month string) (Salary, error) {
	req := salaryRequest{TrainerID: core.CleanString(trainerID), Month: core.CleanString(month)}
	if err := svc.validate.Struct(req); err != nil {
		return Salary{}, err
	}
	trainer, err := svc.directory.Trainer(ctx, instituteID, req.TrainerID)
	if err != nil {
		return Salary{}, errors.Wrap(err, "loading trainer")
	}
	return svc.generateSalary(ctx, instituteID, trainer, req.Month)
}

func (svc *Service) generateSalary(ctx context.Context, instituteID string, trainer member.Trainer, month string) (Salary, error) {
	id := salaryKey(trainer.UID, month)

	var existing Salary
	switch err := svc.store.Get(ctx, salariesColl(instituteID), id, &existing); {
	case err == nil:
		if existing.Status == SalaryPaid {
			return Salary{}, core.NewConflictError(ErrSalaryPaid)
		}
	case !core.IsNotFound(err):
		return Salary{}, errors.Wrap(err, "loading salary")
	}

	totalDays, err := DaysInMonth(month)
	if err != nil {
		return Salary{}, core.NewValidationError(err, core.FieldError{Field: "month", Error: err.Error()})
	}
	presentDays, err := svc.attendance.TrainerPresentDays(ctx, instituteID, trainer.UID, month)
	if err != nil {
		return Salary{}, errors.Wrap(err, "counting present days")
	}
	if presentDays > totalDays {
		presentDays = totalDays
	}
	perDay, payable := ComputeSalary(trainer.MonthlySalary, totalDays, presentDays)

	sal := Salary{
		ID:            id,
		TrainerID:     trainer.UID,
		TrainerName:   trainer.Name(),
		Month:         month,
		TotalDays:     totalDays,
		PresentDays:   presentDays,
		AbsentDays:    totalDays - presentDays,
		MonthlySalary: trainer.MonthlySalary,
		PerDaySalary:  perDay,
		PayableSalary: payable,
		Status:        SalaryGenerated,
	}
	if err := svc.store.Set(ctx, salariesColl(instituteID), id, &sal); err != nil {
		return Salary{}, errors.Wrap(err, "saving salary")
	}
	return sal, nil
}

// GenerateAllSalaries generates month's salary of every trainer of the institute, one write per trainer.
// Paid salaries are skipped. When some trainers fail and others succeed a *core.PartialWriteError is returned
// along with the result; when all fail, the first failure is returned.
func (svc *Service) GenerateAllSalaries(ctx context.Context, instituteID, month string) (BulkResult, error) {
	month = core.CleanString(month)
	if err := svc.validate.Var(month, "required,yearmonth"); err != nil {
		return BulkResult{}, core.NewValidationError(err, core.FieldError{Field: "month", Error: "must be a month formatted as YYYY-MM"})
	}
	trainers, err := svc.directory.Trainers(ctx, instituteID)
	if err != nil {
		return BulkResult{}, errors.Wrap(err, "listing trainers")
	}

	res := BulkResult{Generated: make([]Salary, 0, len(trainers)), Skipped: make([]string, 0), Failed: make(map[string]error)}
	var firstErr error
	for _, tr := range trainers {
		sal, err := svc.generateSalary(ctx, instituteID, tr, month)
		var conflict *core.ConflictError
		switch {
		case err == nil:
			res.Generated = append(res.Generated, sal)
		case errors.As(err, &conflict):
			res.Skipped = append(res.Skipped, tr.UID)
		default:
			res.Failed[tr.UID] = err
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(res.Failed) == 0 {
		return res, nil
	}
	if len(res.Generated) == 0 {
		return res, firstErr
	}
	done := make([]string, 0, len(res.Generated))
	for _, s := range res.Generated {
		done = append(done, s.TrainerID)
	}
	return res, &core.PartialWriteError{Done: done, Failed: res.Failed}
}

func (svc *Service) GetSalary(ctx context.Context, instituteID, salaryID string) (Salary, error) {
	var sal Salary
	if err := svc.store.Get(ctx, salariesColl(instituteID), salaryID, &sal); err != nil {
		return Salary{}, errors.Wrap(err, "loading salary")
	}
	return sal, nil
}

// MarkSalaryPaid moves a generated salary to paid with the given payment mode (Cash by default).
func (svc *Service) MarkSalaryPaid(ctx context.Context, instituteID, salaryID, mode string) (Salary, error) {
	if mode == "" {
		mode = ModeCash
	}
	if err := svc.validate.Var(mode, "oneof=Cash UPI Card Bank"); err != nil {
		return Salary{}, core.NewValidationError(err, core.FieldError{Field: "paymentMode", Error: "must be one of Cash, UPI, Card, Bank"})
	}
	sal, err := svc.GetSalary(ctx, instituteID, salaryID)
	if err != nil {
		return Salary{}, err
	}
	if sal.Status == SalaryPaid {
		return Salary{}, core.NewValidationError(ErrSalaryPaid, core.FieldError{Field: "status", Error: ErrSalaryPaid.Error()})
	}
	err = svc.store.Update(ctx, salariesColl(instituteID), salaryID, map[string]interface{}{
		"status":      SalaryPaid,
		"paymentMode": mode,
		"paidAt":      core.ServerTimestamp,
	})
	if err != nil {
		return Salary{}, errors.Wrap(err, "marking salary paid")
	}
	if sal, err = svc.GetSalary(ctx, instituteID, salaryID); err != nil {
		return Salary{}, err
	}

	if trainer, err := svc.directory.Trainer(ctx, instituteID, sal.TrainerID); err == nil {
		svc.sendSalarySlip(trainer, sal)
	}
	return sal, nil
}

// ListSalaries returns the salaries generated for month, by trainer name.
func (svc *Service) ListSalaries(ctx context.Context, instituteID, month string) ([]Salary, error) {
	var filters []core.Filter
	if month != "" {
		filters = append(filters, core.Where("month", month))
	}
	var sals []Salary
	if err := svc.store.Query(ctx, salariesColl(instituteID), filters, &sals); err != nil {
		return nil, errors.Wrap(err, "listing salaries")
	}
	sort.SliceStable(sals, func(i, j int) bool {
		if sals[i].Month != sals[j].Month {
			return sals[i].Month > sals[j].Month
		}
		return sals[i].TrainerName < sals[j].TrainerName
	})
	return sals, nil
}

// SalaryStatus reports SalaryPending when no salary was generated for the trainer and month.
func (svc *Service) SalaryStatus(ctx context.Context, instituteID, trainerID, month string) (SalaryStatus, error) {
	sal, err := svc.GetSalary(ctx, instituteID, salaryKey(trainerID, month))
	switch {
	case err == nil:
		return sal.Status, nil
	case core.IsNotFound(err):
		return SalaryPending, nil
	default:
		return "", err
	}
}

// Notifications

func (svc *Service) sendFeeReceipt(email, name string, fee Fee, subject string) {
	if svc.opts.Mailer == nil || email == "" {
		return
	}
	svc.opts.Mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: email}},
		Subject:      subject + " - " + fee.Period(),
		TemplateName: "fee_receipt",
		TemplateData: map[string]interface{}{
			"StudentName":  name,
			"Period":       fee.Period(),
			"Status":       fee.Status,
			"ReceiptNo":    fee.ReceiptNo,
			"BaseFee":      fee.BaseFee,
			"Discount":     fee.Discount,
			"ExtraCharges": fee.ExtraCharges,
			"FinalAmount":  fee.FinalAmount,
			"PaymentMode":  fee.PaymentMode,
		},
	})
}

func (svc *Service) sendSalarySlip(trainer member.Trainer, sal Salary) {
	if svc.opts.Mailer == nil || trainer.Email == "" {
		return
	}
	svc.opts.Mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: trainer.Name(), Address: trainer.Email}},
		Subject:      "Salary slip - " + sal.Month,
		TemplateName: "salary_slip",
		TemplateData: sal,
	})
}
