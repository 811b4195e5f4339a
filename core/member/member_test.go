package member

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sportshub/core"
	inmemstore "github.com/trezcool/sportshub/storage/docstore/inmem"
)

func newTestDirectory() (*Directory, *Resolver, *inmemstore.Store) {
	st := inmemstore.New()
	return NewDirectory(st, core.NewValidator()), NewResolver(st), st
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	dir, res, _ := newTestDirectory()

	require.NoError(t, dir.SaveInstitute(ctx, Institute{UID: "inst", Name: "Ace Academy"}))
	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "stud", InstituteID: "inst", FirstName: "Asha"}))
	require.NoError(t, dir.SaveTrainer(ctx, Trainer{UID: "trn", InstituteID: "inst", FirstName: "Ravi", LastName: "K"}))
	require.NoError(t, dir.SaveTrainerStudent(ctx, TrainerStudent{UID: "tstud", TrainerUID: "trn", FirstName: "Mira"}))
	// an account with two profiles: the student profile wins
	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "both", InstituteID: "inst", FirstName: "Dual"}))
	require.NoError(t, dir.SaveTrainer(ctx, Trainer{UID: "both", InstituteID: "inst", FirstName: "Dual"}))
	require.NoError(t, dir.SaveTrainerStudent(ctx, TrainerStudent{UID: "trn", TrainerUID: "x", FirstName: "Ravi"}))

	tests := []struct {
		uid         string
		wantKind    Kind
		wantInst    string
		wantName    string
		wantActions []Action
	}{
		{
			uid: "stud", wantKind: KindStudent, wantInst: "inst", wantName: "Asha",
			wantActions: []Action{ActionHome, ActionStudentTimetable, ActionMyAttendance, ActionFeeDetails, ActionLogout},
		},
		{
			uid: "trn", wantKind: KindTrainer, wantInst: "inst", wantName: "Ravi K",
			wantActions: []Action{
				ActionCheckIn, ActionTrainerTimetable, ActionMyAttendance, ActionTakeAttendance, ActionTrainerFees,
				ActionLogout,
			},
		},
		{
			uid: "tstud", wantKind: KindTrainerStudent, wantName: "Mira",
			wantActions: []Action{ActionTrainerStudentAttendance, ActionTrainerStudentFees, ActionLogout},
		},
		{uid: "both", wantKind: KindStudent, wantInst: "inst", wantName: "Dual", wantActions: actionSets[KindStudent]},
		{uid: "inst", wantKind: KindInstitute, wantInst: "inst", wantName: "Ace Academy", wantActions: actionSets[KindInstitute]},
		{uid: "nobody", wantKind: KindUnknown, wantActions: []Action{}},
		{uid: "", wantKind: KindUnknown, wantActions: []Action{}},
	}
	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			role, err := res.Resolve(ctx, Identity{UID: tt.uid})
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, role.Kind)
			assert.Equal(t, tt.wantInst, role.InstituteID)
			assert.Equal(t, tt.wantName, role.Name)
			assert.Equal(t, tt.wantActions, role.Actions())
		})
	}
}

func TestResolver_StoreFailure(t *testing.T) {
	_, res, st := newTestDirectory()
	st.FailOn(func(op, coll, id string) error { return errors.New("offline") })

	role, err := res.Resolve(context.Background(), Identity{UID: "stud"})
	var serr *core.StoreError
	assert.True(t, errors.As(err, &serr))
	assert.Equal(t, KindUnknown, role.Kind)
}

func TestRole_Can(t *testing.T) {
	student := Role{Kind: KindStudent}
	assert.True(t, student.Can(ActionFeeDetails))
	assert.False(t, student.Can(ActionTakeAttendance))

	trainer := Role{Kind: KindTrainer}
	assert.True(t, trainer.Can(ActionTakeAttendance))
	assert.False(t, trainer.Can(ActionManageFees))
	assert.True(t, trainer.Can(ActionTrainerFees))

	unknown := UnknownRole(Identity{UID: "x"})
	assert.False(t, unknown.IsKnown())
	assert.False(t, unknown.Can(ActionLogout))
	assert.Empty(t, unknown.Actions())

	// callers cannot alter the shared action sets
	acts := student.Actions()
	acts[0] = ActionManageFees
	assert.Equal(t, ActionHome, student.Actions()[0])
}

func TestDirectory_Lookups(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory()
	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "s2", InstituteID: "inst", FirstName: "Bala", Email: " BALA@Mail.com "}))
	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "s1", InstituteID: "inst", FirstName: "Asha"}))
	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "s3", InstituteID: "other", FirstName: "Chitra"}))
	require.NoError(t, dir.SaveTrainer(ctx, Trainer{UID: "t1", InstituteID: "inst", FirstName: "Ravi", MonthlySalary: 30000}))

	students, err := dir.Students(ctx, "inst")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Asha", students[0].FirstName)
	assert.Equal(t, "bala@mail.com", students[1].Email)

	_, err = dir.Student(ctx, "inst", "s3")
	assert.True(t, core.IsNotFound(err))

	tr, err := dir.Trainer(ctx, "inst", "t1")
	require.NoError(t, err)
	assert.Equal(t, 30000.0, tr.MonthlySalary)

	require.NoError(t, dir.SaveTrainerStudent(ctx, TrainerStudent{UID: "ts1", TrainerUID: "t1", FirstName: "Mira"}))
	ts, err := dir.TrainerStudent(ctx, "t1", "ts1")
	require.NoError(t, err)
	assert.Equal(t, "Mira", ts.FirstName)
	_, err = dir.TrainerStudent(ctx, "t2", "ts1")
	assert.True(t, core.IsNotFound(err))

	names, err := dir.StudentNames(ctx, "inst", []string{"s1", "s3", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"s1": "Asha"}, names)

	err = dir.SaveStudent(ctx, Student{UID: "s4", FirstName: "NoInst"})
	assert.True(t, core.IsValidationError(err))
}

func TestDirectory_WatchRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir, _, _ := newTestDirectory()
	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "s1", InstituteID: "inst", FirstName: "Asha"}))

	rosters := make(chan Roster, 10)
	stop, err := dir.WatchRoster(ctx, "inst", func(r Roster) { rosters <- r })
	require.NoError(t, err)
	defer stop()

	waitFor := func(cond func(Roster) bool) {
		deadline := time.After(time.Second)
		for {
			select {
			case r := <-rosters:
				if cond(r) {
					return
				}
			case <-deadline:
				t.Fatal("roster update not received")
			}
		}
	}

	waitFor(func(r Roster) bool { return len(r.Students) == 1 && len(r.Trainers) == 0 })

	require.NoError(t, dir.SaveTrainer(ctx, Trainer{UID: "t1", InstituteID: "inst", FirstName: "Ravi"}))
	waitFor(func(r Roster) bool { return len(r.Trainers) == 1 })

	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "s9", InstituteID: "other", FirstName: "Zed"}))
	require.NoError(t, dir.SaveStudent(ctx, Student{UID: "s2", InstituteID: "inst", FirstName: "Bala"}))
	waitFor(func(r Roster) bool { return len(r.Students) == 2 })
}
