package member

import (
	"strings"
)

// Profile collections. Documents are keyed by the identity provider uid.
const (
	StudentsCollection        = "students"
	TrainersCollection        = "instituteTrainers"
	TrainerStudentsCollection = "trainerStudents"
	InstitutesCollection      = "institutes"
)

// Identity is the authenticated account, as asserted by the identity provider.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type Student struct {
	UID         string  `json:"uid" validate:"required"`
	InstituteID string  `json:"instituteId" validate:"required"`
	FirstName   string  `json:"firstName" validate:"required"`
	LastName    string  `json:"lastName"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Phone       string  `json:"phone"`
	Category    string  `json:"category"`
	FeeAmount   float64 `json:"feeAmount" validate:"gte=0"`
}

func (s Student) Name() string { return fullName(s.FirstName, s.LastName) }

type Trainer struct {
	UID           string  `json:"uid" validate:"required"`
	InstituteID   string  `json:"instituteId" validate:"required"`
	FirstName     string  `json:"firstName" validate:"required"`
	LastName      string  `json:"lastName"`
	Email         string  `json:"email" validate:"omitempty,email"`
	Phone         string  `json:"phone"`
	Category      string  `json:"category"`
	MonthlySalary float64 `json:"monthlySalary" validate:"gte=0"`
}

func (t Trainer) Name() string { return fullName(t.FirstName, t.LastName) }

// TrainerStudent is a student enrolled directly with a trainer rather than with the institute.
type TrainerStudent struct {
	UID         string  `json:"uid" validate:"required"`
	TrainerUID  string  `json:"trainerUid" validate:"required"`
	InstituteID string  `json:"instituteId"`
	FirstName   string  `json:"firstName" validate:"required"`
	LastName    string  `json:"lastName"`
	Email       string  `json:"email" validate:"omitempty,email"`
	FeeAmount   float64 `json:"feeAmount" validate:"gte=0"`
}

func (s TrainerStudent) Name() string { return fullName(s.FirstName, s.LastName) }

type Institute struct {
	UID   string `json:"uid" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// Roster is the live list of an institute's students and trainers.
type Roster struct {
	Students []Student `json:"students"`
	Trainers []Trainer `json:"trainers"`
}
