package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/billing"
)

const salaryJobTimeout = 10 * time.Minute

// SalaryJob generates last month's salaries of every institute's trainers.
type SalaryJob struct {
	institutes InstituteLister
	salaries   SalaryGenerator
	logger     core.Logger
	loc        *time.Location
}

func NewSalaryJob(institutes InstituteLister, salaries SalaryGenerator, logger core.Logger, loc *time.Location) *SalaryJob {
	if loc == nil {
		loc = time.UTC
	}
	return &SalaryJob{institutes: institutes, salaries: salaries, logger: logger, loc: loc}
}

// Run implements cron.Job.
func (j *SalaryJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), salaryJobTimeout)
	defer cancel()

	month := PreviousMonth(core.NowFunc().In(j.loc))
	if _, err := j.RunFor(ctx, month); err != nil {
		j.logger.Error("jobs: salary generation for "+month, err)
	}
}

// RunFor generates month's salaries for every institute. Institutes are independent:
// a failing one is logged and reported, the others still run.
func (j *SalaryJob) RunFor(ctx context.Context, month string) (map[string]billing.BulkResult, error) {
	institutes, err := j.institutes.Institutes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing institutes")
	}

	results := make(map[string]billing.BulkResult, len(institutes))
	var failed []string
	for _, inst := range institutes {
		res, err := j.salaries.GenerateAllSalaries(ctx, inst.UID, month)
		results[inst.UID] = res
		if err != nil {
			j.logger.Error(fmt.Sprintf("jobs: salaries of %s for %s", inst.UID, month), err)
			failed = append(failed, inst.UID)
			continue
		}
		j.logger.Info(fmt.Sprintf(
			"jobs: salaries of %s for %s: %d generated, %d skipped",
			inst.UID, month, len(res.Generated), len(res.Skipped),
		))
	}
	if len(failed) > 0 {
		return results, errors.Errorf("salary generation failed for %d institute(s): %v", len(failed), failed)
	}
	return results, nil
}

// PreviousMonth returns the YYYY-MM month before t's.
func PreviousMonth(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, -1, 0).Format(core.MonthLayout)
}
