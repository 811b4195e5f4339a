package schedule

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
)

const collectionName = "timetable"

type Service struct {
	store    core.DocStore
	validate *validator.Validate
}

func NewService(store core.DocStore, validate *validator.Validate) *Service {
	return &Service{store: store, validate: validate}
}

func collection(instituteID string) string {
	return core.InstituteCollection(instituteID, collectionName)
}

func (svc *Service) ListSlots(ctx context.Context, instituteID string) ([]Slot, error) {
	var slots []Slot
	if err := svc.store.Query(ctx, collection(instituteID), nil, &slots); err != nil {
		return nil, errors.Wrap(err, "listing slots")
	}
	SortSlots(slots)
	return slots, nil
}

// GetSlot returns the slot filling the (day, time) cell, or core.ErrNotFound.
func (svc *Service) GetSlot(ctx context.Context, instituteID string, day Day, t Time) (Slot, error) {
	slots, err := svc.ListSlots(ctx, instituteID)
	if err != nil {
		return Slot{}, err
	}
	if s, ok := find(slots, day, t); ok {
		return s, nil
	}
	return Slot{}, core.ErrNotFound
}

func find(slots []Slot, day Day, t Time) (Slot, bool) {
	for _, s := range slots {
		if s.Day == day && s.Time == t {
			return s, true
		}
	}
	return Slot{}, false
}

// UpsertSlot fills the (day, time) cell, overwriting the slot already there (keeping its id).
// Slots are never deleted.
func (svc *Service) UpsertSlot(ctx context.Context, instituteID string, ns NewSlot) (Slot, error) {
	ns.clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Slot{}, err
	}

	slots, err := svc.ListSlots(ctx, instituteID)
	if err != nil {
		return Slot{}, err
	}
	slot, ok := find(slots, ns.Day, ns.Time)
	if !ok {
		slot = Slot{ID: slotKey(ns.Day, ns.Time), Day: ns.Day, Time: ns.Time}
	}
	slot.Category = ns.Category
	slot.TrainerID = ns.TrainerID
	slot.TrainerName = ns.TrainerName
	slot.Students = ns.Students

	if err := svc.store.Set(ctx, collection(instituteID), slot.ID, &slot); err != nil {
		return Slot{}, errors.Wrap(err, "saving slot")
	}
	return slot, nil
}

func (svc *Service) filter(ctx context.Context, instituteID string, keep func(Slot) bool) ([]Slot, error) {
	slots, err := svc.ListSlots(ctx, instituteID)
	if err != nil {
		return nil, err
	}
	res := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if keep(s) {
			res = append(res, s)
		}
	}
	return res, nil
}

func (svc *Service) TrainerSlots(ctx context.Context, instituteID, trainerID string) ([]Slot, error) {
	return svc.filter(ctx, instituteID, func(s Slot) bool { return s.TrainerID == trainerID })
}

// StudentSlots returns the slots whose roster contains the student.
func (svc *Service) StudentSlots(ctx context.Context, instituteID, studentID string) ([]Slot, error) {
	return svc.filter(ctx, instituteID, func(s Slot) bool { return s.HasStudent(studentID) })
}

// TrainerSlotsOn returns the trainer's slots on the weekday of date.
func (svc *Service) TrainerSlotsOn(ctx context.Context, instituteID, trainerID string, date time.Time) ([]Slot, error) {
	day := DayOf(date)
	return svc.filter(ctx, instituteID, func(s Slot) bool { return s.TrainerID == trainerID && s.Day == day })
}
