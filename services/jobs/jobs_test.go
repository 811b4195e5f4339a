package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
	inmemstore "github.com/trezcool/sportshub/storage/docstore/inmem"
	testutil "github.com/trezcool/sportshub/tests"
)

type fakeGenerator struct {
	calls []string
	fail  map[string]error
}

func (g *fakeGenerator) GenerateAllSalaries(_ context.Context, instituteID, month string) (billing.BulkResult, error) {
	g.calls = append(g.calls, instituteID+"@"+month)
	return billing.BulkResult{}, g.fail[instituteID]
}

func TestPreviousMonth(t *testing.T) {
	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC), "2024-06"},
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2023-12"},
		{time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC), "2024-02"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, PreviousMonth(tt.now))
		})
	}
}

func TestSalaryJob_RunFor(t *testing.T) {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { core.NowFunc = orig })

	ctx := context.Background()
	store := inmemstore.New()
	validate := core.NewValidator()
	dir := member.NewDirectory(store, validate)
	att := attendance.NewService(store, validate, attendance.Options{})
	bill := billing.NewService(store, validate, dir, att, billing.Options{})

	inst := testutil.CreateInstitute(t, dir, "inst1", "Academy")
	tr := testutil.CreateTrainer(t, dir, inst.UID, "t1", "Ravi", 30000)
	for d := 1; d <= 25; d++ {
		_, err := att.CheckIn(ctx, inst.UID, tr.UID, attendance.NewCheckIn{Date: testutil.Date("2024-06", d), Status: attendance.Present})
		require.NoError(t, err)
	}

	logger := new(testutil.Logger)
	job := NewSalaryJob(dir, bill, logger, time.UTC)
	job.Run()

	sals, err := bill.ListSalaries(ctx, inst.UID, "2024-06")
	require.NoError(t, err)
	require.Len(t, sals, 1)
	assert.Equal(t, 25000.0, sals[0].PayableSalary)
	assert.Equal(t, 5, sals[0].AbsentDays)
	assert.Contains(t, logger.Entries(), "INFO: jobs: salaries of inst1 for 2024-06: 1 generated, 0 skipped")
}

func TestSalaryJob_FailureIsolation(t *testing.T) {
	dir := member.NewDirectory(inmemstore.New(), core.NewValidator())
	testutil.CreateInstitute(t, dir, "a", "Alpha")
	testutil.CreateInstitute(t, dir, "b", "Beta")
	testutil.CreateInstitute(t, dir, "c", "Gamma")

	gen := &fakeGenerator{fail: map[string]error{"b": errors.New("boom")}}
	logger := new(testutil.Logger)
	job := NewSalaryJob(dir, gen, logger, nil)

	res, err := job.RunFor(context.Background(), "2024-06")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[b]")
	assert.ElementsMatch(t, []string{"a@2024-06", "b@2024-06", "c@2024-06"}, gen.calls)
	assert.Len(t, res, 3)
	assert.Contains(t, logger.Entries(), "ERROR: jobs: salaries of b for 2024-06")
}

func TestScheduler(t *testing.T) {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	s := NewScheduler(conf, logger)

	job := NewSalaryJob(member.NewDirectory(inmemstore.New(), core.NewValidator()), new(fakeGenerator), logger, conf.Location())
	require.NoError(t, s.Register("salaries", conf.Billing.SalaryCron, job))
	assert.Error(t, s.Register("broken", "not a spec", job))
	assert.Equal(t, 1, s.Entries())

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
