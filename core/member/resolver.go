package member

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
)

// Resolver determines the role of an authenticated identity.
type Resolver struct {
	store core.DocStore
}

func NewResolver(store core.DocStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve probes the profile collections with a fixed precedence: student, trainer, trainer-student,
// then institute account. The first match wins; no match gives the Unknown role.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (Role, error) {
	if id.UID == "" {
		return UnknownRole(id), nil
	}

	var (
		s    Student
		t    Trainer
		ts   TrainerStudent
		inst Institute
	)
	probes := []struct {
		coll string
		dst  interface{}
		role func() Role
	}{
		{StudentsCollection, &s, func() Role { return StudentRole(id, s) }},
		{TrainersCollection, &t, func() Role { return TrainerRole(id, t) }},
		{TrainerStudentsCollection, &ts, func() Role { return TrainerStudentRole(id, ts) }},
		{InstitutesCollection, &inst, func() Role { return InstituteRole(id, inst) }},
	}
	for _, p := range probes {
		ok, err := r.probe(ctx, p.coll, id.UID, p.dst)
		if err != nil {
			return UnknownRole(id), err
		}
		if ok {
			return p.role(), nil
		}
	}
	return UnknownRole(id), nil
}

func (r *Resolver) probe(ctx context.Context, coll, uid string, dst interface{}) (bool, error) {
	err := r.store.Get(ctx, coll, uid, dst)
	switch {
	case err == nil:
		return true, nil
	case core.IsNotFound(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "probing %s", coll)
	}
}
