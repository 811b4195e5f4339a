package member

import (
	"context"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
)

// Directory reads and maintains the member profiles of institutes.
type Directory struct {
	store    core.DocStore
	validate *validator.Validate
}

func NewDirectory(store core.DocStore, validate *validator.Validate) *Directory {
	return &Directory{store: store, validate: validate}
}

func (d *Directory) SaveInstitute(ctx context.Context, inst Institute) error {
	inst.Name = core.CleanString(inst.Name)
	inst.Email = core.CleanString(inst.Email, true /* lower */)
	if err := d.validate.Struct(inst); err != nil {
		return err
	}
	return errors.Wrap(d.store.Set(ctx, InstitutesCollection, inst.UID, &inst), "saving institute")
}

func (d *Directory) SaveStudent(ctx context.Context, s Student) error {
	s.FirstName = core.CleanString(s.FirstName)
	s.LastName = core.CleanString(s.LastName)
	s.Email = core.CleanString(s.Email, true /* lower */)
	if err := d.validate.Struct(s); err != nil {
		return err
	}
	return errors.Wrap(d.store.Set(ctx, StudentsCollection, s.UID, &s), "saving student")
}

func (d *Directory) SaveTrainer(ctx context.Context, t Trainer) error {
	t.FirstName = core.CleanString(t.FirstName)
	t.LastName = core.CleanString(t.LastName)
	t.Email = core.CleanString(t.Email, true /* lower */)
	if err := d.validate.Struct(t); err != nil {
		return err
	}
	return errors.Wrap(d.store.Set(ctx, TrainersCollection, t.UID, &t), "saving trainer")
}

func (d *Directory) SaveTrainerStudent(ctx context.Context, s TrainerStudent) error {
	s.FirstName = core.CleanString(s.FirstName)
	s.LastName = core.CleanString(s.LastName)
	s.Email = core.CleanString(s.Email, true /* lower */)
	if err := d.validate.Struct(s); err != nil {
		return err
	}
	return errors.Wrap(d.store.Set(ctx, TrainerStudentsCollection, s.UID, &s), "saving trainer student")
}

func (d *Directory) Institute(ctx context.Context, uid string) (Institute, error) {
	var inst Institute
	if err := d.store.Get(ctx, InstitutesCollection, uid, &inst); err != nil {
		return Institute{}, errors.Wrap(err, "loading institute")
	}
	return inst, nil
}

func (d *Directory) Institutes(ctx context.Context) ([]Institute, error) {
	var insts []Institute
	if err := d.store.Query(ctx, InstitutesCollection, nil, &insts); err != nil {
		return nil, errors.Wrap(err, "listing institutes")
	}
	return insts, nil
}

// Student returns a student of the institute; students of other institutes are not found.
func (d *Directory) Student(ctx context.Context, instituteID, uid string) (Student, error) {
	var s Student
	if err := d.store.Get(ctx, StudentsCollection, uid, &s); err != nil {
		return Student{}, errors.Wrap(err, "loading student")
	}
	if s.InstituteID != instituteID {
		return Student{}, core.ErrNotFound
	}
	return s, nil
}

// Trainer returns a trainer of the institute; trainers of other institutes are not found.
func (d *Directory) Trainer(ctx context.Context, instituteID, uid string) (Trainer, error) {
	var t Trainer
	if err := d.store.Get(ctx, TrainersCollection, uid, &t); err != nil {
		return Trainer{}, errors.Wrap(err, "loading trainer")
	}
	if t.InstituteID != instituteID {
		return Trainer{}, core.ErrNotFound
	}
	return t, nil
}

// TrainerStudent returns a student enrolled with the trainer; students of other trainers are not found.
func (d *Directory) TrainerStudent(ctx context.Context, trainerUID, uid string) (TrainerStudent, error) {
	var s TrainerStudent
	if err := d.store.Get(ctx, TrainerStudentsCollection, uid, &s); err != nil {
		return TrainerStudent{}, errors.Wrap(err, "loading trainer student")
	}
	if s.TrainerUID != trainerUID {
		return TrainerStudent{}, core.ErrNotFound
	}
	return s, nil
}

func (d *Directory) Students(ctx context.Context, instituteID string) ([]Student, error) {
	var students []Student
	err := d.store.Query(ctx, StudentsCollection, []core.Filter{core.Where("instituteId", instituteID)}, &students)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name() < students[j].Name() })
	return students, nil
}

func (d *Directory) Trainers(ctx context.Context, instituteID string) ([]Trainer, error) {
	var trainers []Trainer
	err := d.store.Query(ctx, TrainersCollection, []core.Filter{core.Where("instituteId", instituteID)}, &trainers)
	if err != nil {
		return nil, errors.Wrap(err, "listing trainers")
	}
	sort.Slice(trainers, func(i, j int) bool { return trainers[i].Name() < trainers[j].Name() })
	return trainers, nil
}

// TrainerStudents lists the students enrolled directly with a trainer.
func (d *Directory) TrainerStudents(ctx context.Context, trainerUID string) ([]TrainerStudent, error) {
	var students []TrainerStudent
	err := d.store.Query(ctx, TrainerStudentsCollection, []core.Filter{core.Where("trainerUid", trainerUID)}, &students)
	if err != nil {
		return nil, errors.Wrap(err, "listing trainer students")
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name() < students[j].Name() })
	return students, nil
}

// StudentNames maps the given student ids to display names. Unknown ids are left out.
func (d *Directory) StudentNames(ctx context.Context, instituteID string, ids []string) (map[string]string, error) {
	students, err := d.Students(ctx, instituteID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	names := make(map[string]string, len(ids))
	for _, s := range students {
		if wanted[s.UID] {
			names[s.UID] = s.Name()
		}
	}
	return names, nil
}

// WatchRoster calls fn with the institute roster once both feeds delivered, then after every change.
func (d *Directory) WatchRoster(ctx context.Context, instituteID string, fn func(Roster)) (func(), error) {
	var (
		mu                  sync.Mutex
		roster              Roster
		gotStuds, gotTrains bool
	)
	filters := []core.Filter{core.Where("instituteId", instituteID)}

	emit := func() {
		if !gotStuds || !gotTrains {
			return
		}
		out := Roster{
			Students: append([]Student(nil), roster.Students...),
			Trainers: append([]Trainer(nil), roster.Trainers...),
		}
		fn(out)
	}

	stopStuds, err := d.store.Watch(ctx, StudentsCollection, filters, func(docs []core.Doc) {
		var students []Student
		if err := core.DecodeDocs(docs, &students); err != nil {
			return
		}
		sort.Slice(students, func(i, j int) bool { return students[i].Name() < students[j].Name() })
		mu.Lock()
		defer mu.Unlock()
		roster.Students, gotStuds = students, true
		emit()
	})
	if err != nil {
		return nil, errors.Wrap(err, "watching students")
	}

	stopTrains, err := d.store.Watch(ctx, TrainersCollection, filters, func(docs []core.Doc) {
		var trainers []Trainer
		if err := core.DecodeDocs(docs, &trainers); err != nil {
			return
		}
		sort.Slice(trainers, func(i, j int) bool { return trainers[i].Name() < trainers[j].Name() })
		mu.Lock()
		defer mu.Unlock()
		roster.Trainers, gotTrains = trainers, true
		emit()
	})
	if err != nil {
		stopStuds()
		return nil, errors.Wrap(err, "watching trainers")
	}

	return func() {
		stopStuds()
		stopTrains()
	}, nil
}
