package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/schedule"
)

const (
	recordsCollection  = "attendance"
	checkInsCollection = "trainerAttendance"
)

type (
	// Roster resolves student display names stored alongside records.
	Roster interface {
		StudentNames(ctx context.Context, instituteID string, ids []string) (map[string]string, error)
	}

	Options struct {
		Policy   Policy
		Location *time.Location // decides what "today" is; UTC by default
		Roster   Roster         // optional
	}

	Service struct {
		store    core.DocStore
		validate *validator.Validate
		opts     Options
	}
)

func NewService(store core.DocStore, validate *validator.Validate, opts Options) *Service {
	if !opts.Policy.Valid() {
		opts.Policy = PolicyUpsert
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{store: store, validate: validate, opts: opts}
}

func (svc *Service) Policy() Policy { return svc.opts.Policy }

func recordsColl(instituteID string) string {
	return core.InstituteCollection(instituteID, recordsCollection)
}

func checkInsColl(instituteID string) string {
	return core.InstituteCollection(instituteID, checkInsCollection)
}

// checkDate rejects dates after today, before anything touches the store.
func (svc *Service) checkDate(date string) error {
	if date > core.Today(svc.opts.Location) {
		return core.NewValidationError(core.ErrFutureDate, core.FieldError{Field: "date", Error: core.ErrFutureDate.Error()})
	}
	return nil
}

// RecordAttendance writes one record per student on the slot roster in a single atomic batch.
func (svc *Service) RecordAttendance(ctx context.Context, instituteID string, slot schedule.Slot, na NewAttendance) (Result, error) {
	na.Date = core.CleanString(na.Date)
	if err := svc.validate.Struct(na); err != nil {
		return Result{}, err
	}
	if err := svc.checkDate(na.Date); err != nil {
		return Result{}, err
	}
	if len(slot.Students) == 0 {
		return Result{}, core.NewValidationError(errors.New("the class has no students"))
	}

	var names map[string]string
	if svc.opts.Roster != nil {
		var err error
		if names, err = svc.opts.Roster.StudentNames(ctx, instituteID, slot.Students); err != nil {
			return Result{}, errors.Wrap(err, "resolving student names")
		}
	}

	res := Result{Records: make([]Record, 0, len(slot.Students))}
	writes := make([]core.Write, 0, len(slot.Students))
	for _, studentID := range slot.Students {
		status, ok := na.Marks[studentID]
		if !ok {
			status = Absent
		}
		rec := Record{
			Date:        na.Date,
			Day:         slot.Day,
			Time:        slot.Time,
			Category:    slot.Category,
			TrainerID:   slot.TrainerID,
			StudentID:   studentID,
			StudentName: names[studentID],
			Status:      status,
		}
		res.Records = append(res.Records, rec)
	}

	for i := range res.Records {
		rec := &res.Records[i]
		if svc.opts.Policy == PolicyAppend {
			writes = append(writes, core.AddWrite(recordsColl(instituteID), rec))
		} else {
			rec.ID = recordKey(rec.StudentID, rec.Date, rec.Category)
			writes = append(writes, core.SetWrite(recordsColl(instituteID), rec.ID, rec))
		}
		if rec.Status == Present {
			res.Present++
		} else {
			res.Absent++
		}
	}

	if err := svc.store.Batch(ctx, writes); err != nil {
		return Result{}, errors.Wrap(err, "recording attendance")
	}
	return res, nil
}

func (svc *Service) query(ctx context.Context, instituteID string, filters ...core.Filter) ([]Record, error) {
	var records []Record
	if err := svc.store.Query(ctx, recordsColl(instituteID), filters, &records); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return records, nil
}

// Summarize aggregates a trainer's class per student, from a single shared query.
func (svc *Service) Summarize(ctx context.Context, instituteID, trainerID, category string) (map[string]Summary, error) {
	records, err := svc.query(ctx, instituteID, core.Where("trainerId", trainerID), core.Where("category", category))
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// SummaryFor returns the summary of one student (zero values when nothing was recorded).
func (svc *Service) SummaryFor(ctx context.Context, instituteID, trainerID, category, studentID string) (Summary, error) {
	records, err := svc.query(ctx, instituteID,
		core.Where("trainerId", trainerID), core.Where("category", category), core.Where("studentId", studentID))
	if err != nil {
		return Summary{}, err
	}
	return Summarize(records)[studentID], nil
}

// MarksOn returns the statuses already recorded for a class on date, to prefill a re-take.
func (svc *Service) MarksOn(ctx context.Context, instituteID, trainerID, category, date string) (map[string]Status, error) {
	records, err := svc.query(ctx, instituteID,
		core.Where("trainerId", trainerID), core.Where("category", category), core.Where("date", date))
	if err != nil {
		return nil, err
	}
	marks := make(map[string]Status)
	for _, r := range Latest(records) {
		marks[r.StudentID] = r.Status
	}
	return marks, nil
}

// StudentHistory returns a student's records, newest first.
func (svc *Service) StudentHistory(ctx context.Context, instituteID, studentID string) ([]Record, error) {
	records, err := svc.query(ctx, instituteID, core.Where("studentId", studentID))
	if err != nil {
		return nil, err
	}
	records = Latest(records)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].Time > records[j].Time
	})
	return records, nil
}

// CheckIn records (or corrects) a trainer's attendance for a day.
func (svc *Service) CheckIn(ctx context.Context, instituteID, trainerID string, nc NewCheckIn) (CheckIn, error) {
	nc.Date = core.CleanString(nc.Date)
	if err := svc.validate.Struct(nc); err != nil {
		return CheckIn{}, err
	}
	if trainerID == "" {
		return CheckIn{}, core.NewValidationError(nil, core.FieldError{Field: "trainerId", Error: "this field is required"})
	}
	if err := svc.checkDate(nc.Date); err != nil {
		return CheckIn{}, err
	}

	id := checkInKey(trainerID, nc.Date)
	ci := CheckIn{ID: id, TrainerID: trainerID, Date: nc.Date, Month: nc.Date[:7], Status: nc.Status}

	var existing CheckIn
	switch err := svc.store.Get(ctx, checkInsColl(instituteID), id, &existing); {
	case err == nil:
		ci.CreatedAt = existing.CreatedAt
	case !core.IsNotFound(err):
		return CheckIn{}, errors.Wrap(err, "loading check-in")
	}

	if err := svc.store.Set(ctx, checkInsColl(instituteID), id, &ci); err != nil {
		return CheckIn{}, errors.Wrap(err, "saving check-in")
	}
	return ci, nil
}

// TrainerCheckIns returns a trainer's check-ins for month (YYYY-MM), oldest first.
func (svc *Service) TrainerCheckIns(ctx context.Context, instituteID, trainerID, month string) ([]CheckIn, error) {
	var checkIns []CheckIn
	err := svc.store.Query(ctx, checkInsColl(instituteID),
		[]core.Filter{core.Where("trainerId", trainerID), core.Where("month", month)}, &checkIns)
	if err != nil {
		return nil, errors.Wrap(err, "querying check-ins")
	}
	sort.Slice(checkIns, func(i, j int) bool { return checkIns[i].Date < checkIns[j].Date })
	return checkIns, nil
}

// TrainerPresentDays counts the distinct dates of month (YYYY-MM) the trainer checked in as Present.
func (svc *Service) TrainerPresentDays(ctx context.Context, instituteID, trainerID, month string) (int, error) {
	checkIns, err := svc.TrainerCheckIns(ctx, instituteID, trainerID, month)
	if err != nil {
		return 0, err
	}
	days := make(map[string]bool, len(checkIns))
	for _, ci := range checkIns {
		if ci.Status == Present {
			days[ci.Date] = true
		}
	}
	return len(days), nil
}
