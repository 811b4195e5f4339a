package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
)

// Logger records what services log. It is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg) }

// Entries returns a copy of everything logged so far, as "LEVEL: msg".
func (l *Logger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func CreateInstitute(t *testing.T, dir *member.Directory, uid, name string) member.Institute {
	inst := member.Institute{UID: uid, Name: name, Email: uid + "@institute.test"}
	if err := dir.SaveInstitute(context.Background(), inst); err != nil {
		t.Fatalf("createInstitute() failed: %v", err)
	}
	return inst
}

func CreateStudent(t *testing.T, dir *member.Directory, instituteID, uid, firstName string, fee float64) member.Student {
	s := member.Student{
		UID:         uid,
		InstituteID: instituteID,
		FirstName:   firstName,
		LastName:    "Test",
		Email:       uid + "@student.test",
		Category:    "Football",
		FeeAmount:   fee,
	}
	if err := dir.SaveStudent(context.Background(), s); err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return s
}

func CreateTrainer(t *testing.T, dir *member.Directory, instituteID, uid, firstName string, salary float64) member.Trainer {
	tr := member.Trainer{
		UID:           uid,
		InstituteID:   instituteID,
		FirstName:     firstName,
		LastName:      "Coach",
		Email:         uid + "@trainer.test",
		Category:      "Football",
		MonthlySalary: salary,
	}
	if err := dir.SaveTrainer(context.Background(), tr); err != nil {
		t.Fatalf("createTrainer() failed: %v", err)
	}
	return tr
}

func CreateTrainerStudent(t *testing.T, dir *member.Directory, trainerUID, uid, firstName string, fee float64) member.TrainerStudent {
	s := member.TrainerStudent{
		UID:        uid,
		TrainerUID: trainerUID,
		FirstName:  firstName,
		LastName:   "Private",
		Email:      uid + "@student.test",
		FeeAmount:  fee,
	}
	if err := dir.SaveTrainerStudent(context.Background(), s); err != nil {
		t.Fatalf("createTrainerStudent() failed: %v", err)
	}
	return s
}

// Date returns the YYYY-MM-DD string of a day in month (YYYY-MM).
func Date(month string, day int) string {
	return fmt.Sprintf("%s-%02d", month, day)
}
