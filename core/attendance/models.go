package attendance

import (
	"math"
	"sort"
	"time"

	"github.com/trezcool/sportshub/core/schedule"
)

type Status string

const (
	Present Status = "Present"
	Absent  Status = "Absent"
)

func (s Status) Valid() bool {
	return s == Present || s == Absent
}

// Policy decides what happens when attendance is taken twice for the same class and date.
type Policy string

const (
	// PolicyUpsert keeps one record per (student, date, category); a re-take replaces it.
	PolicyUpsert Policy = "upsert"
	// PolicyAppend keeps every take as its own record.
	PolicyAppend Policy = "append"
)

func (p Policy) Valid() bool {
	return p == PolicyUpsert || p == PolicyAppend
}

// Record is the attendance of one student for one class on one date.
type Record struct {
	ID          string        `json:"id"`
	Date        string        `json:"date"` // YYYY-MM-DD
	Day         schedule.Day  `json:"day"`
	Time        schedule.Time `json:"time"`
	Category    string        `json:"category"`
	TrainerID   string        `json:"trainerId"`
	StudentID   string        `json:"studentId"`
	StudentName string        `json:"studentName"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"` // UTC
}

func (r *Record) StampServerTime(t time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t
	}
}

func (r *Record) SetDocID(id string) { r.ID = id }

func recordKey(studentID, date, category string) string {
	return studentID + "_" + date + "_" + category
}

// Result is the outcome of taking attendance for one class.
type Result struct {
	Records []Record `json:"records"`
	Present int      `json:"present"`
	Absent  int      `json:"absent"`
}

// Summary aggregates one student's records.
type Summary struct {
	Present        int `json:"present"`
	Absent         int `json:"absent"`
	Total          int `json:"total"`
	PresentPercent int `json:"presentPercent"`
}

func (s *Summary) add(st Status) {
	s.Total++
	if st == Absent {
		s.Absent++
	} else {
		s.Present++
	}
}

func (s *Summary) finish() {
	if s.Total == 0 {
		s.PresentPercent = 0
		return
	}
	s.PresentPercent = int(math.Round(float64(s.Total-s.Absent) * 100 / float64(s.Total)))
}

// Summarize groups records per student. Every stored record counts, re-takes included.
func Summarize(records []Record) map[string]Summary {
	res := make(map[string]Summary)
	for _, r := range records {
		s := res[r.StudentID]
		s.add(r.Status)
		res[r.StudentID] = s
	}
	for id, s := range res {
		s.finish()
		res[id] = s
	}
	return res
}

// Latest keeps the most recent record per (student, date, category), ordered by date then student.
func Latest(records []Record) []Record {
	latest := make(map[string]Record, len(records))
	for _, r := range records {
		key := recordKey(r.StudentID, r.Date, r.Category)
		if cur, ok := latest[key]; !ok || !r.CreatedAt.Before(cur.CreatedAt) {
			latest[key] = r
		}
	}
	res := make([]Record, 0, len(latest))
	for _, r := range latest {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date < res[j].Date
		}
		if res[i].Time != res[j].Time {
			return res[i].Time < res[j].Time
		}
		return res[i].StudentID < res[j].StudentID
	})
	return res
}

// CheckIn is a trainer's own attendance for a day.
type CheckIn struct {
	ID        string    `json:"id"`
	TrainerID string    `json:"trainerId"`
	Date      string    `json:"date"`  // YYYY-MM-DD
	Month     string    `json:"month"` // YYYY-MM
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"` // UTC
	UpdatedAt time.Time `json:"updatedAt"` // UTC
}

func (c *CheckIn) StampServerTime(t time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t
	}
	c.UpdatedAt = t
}

func checkInKey(trainerID, date string) string {
	return trainerID + "_" + date
}

// NewAttendance is the input of a class attendance take. Marks missing for rostered students default to Absent.
type NewAttendance struct {
	Date  string            `json:"date" validate:"required,isodate"`
	Marks map[string]Status `json:"marks" validate:"dive,keys,required,endkeys,attstatus"`
}

type NewCheckIn struct {
	Date   string `json:"date" validate:"required,isodate"`
	Status Status `json:"status" validate:"required,attstatus"`
}
