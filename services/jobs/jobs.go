package jobs

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
)

type (
	InstituteLister interface {
		Institutes(ctx context.Context) ([]member.Institute, error)
	}

	SalaryGenerator interface {
		GenerateAllSalaries(ctx context.Context, instituteID, month string) (billing.BulkResult, error)
	}
)

// Scheduler runs the background jobs on the institutes' clock.
type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
}

func NewScheduler(conf *core.Config, logger core.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(conf.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Register schedules job on a standard 5 fields cron spec.
func (s *Scheduler) Register(name, spec string, job cron.Job) error {
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return errors.Wrapf(err, "scheduling %s (%q)", name, spec)
	}
	s.logger.Info(fmt.Sprintf("jobs: %s scheduled (%s)", name, spec))
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the scheduler and waits, up to ctx's deadline, for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// cronLogger adapts core.Logger to cron's logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("cron: %s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s %v", msg, keysAndValues), err)
}
