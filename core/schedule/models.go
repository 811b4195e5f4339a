package schedule

import (
	"sort"
	"time"

	"github.com/trezcool/sportshub/core"
)

// Day is a weekday code of the weekly grid.
type Day string

const (
	Mon Day = "Mon"
	Tue Day = "Tue"
	Wed Day = "Wed"
	Thu Day = "Thu"
	Fri Day = "Fri"
	Sat Day = "Sat"
	Sun Day = "Sun"
)

// Time is an hourly slot code of the weekly grid.
type Time string

var (
	Days  = []Day{Mon, Tue, Wed, Thu, Fri, Sat, Sun}
	Times = []Time{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00"}

	dayIndex  = indexOf(len(Days), func(i int) string { return string(Days[i]) })
	timeIndex = indexOf(len(Times), func(i int) string { return string(Times[i]) })

	weekdayCodes = map[time.Weekday]Day{
		time.Monday:    Mon,
		time.Tuesday:   Tue,
		time.Wednesday: Wed,
		time.Thursday:  Thu,
		time.Friday:    Fri,
		time.Saturday:  Sat,
		time.Sunday:    Sun,
	}
)

func indexOf(n int, key func(int) string) map[string]int {
	m := make(map[string]int, n)
	for i := 0; i < n; i++ {
		m[key(i)] = i
	}
	return m
}

func (d Day) Valid() bool {
	_, ok := dayIndex[string(d)]
	return ok
}

func (t Time) Valid() bool {
	_, ok := timeIndex[string(t)]
	return ok
}

// DayOf returns the weekday code of a calendar date.
func DayOf(date time.Time) Day {
	return weekdayCodes[date.Weekday()]
}

// Slot is one cell of an institute's weekly timetable: a class of one category, one trainer and a roster.
type Slot struct {
	ID          string    `json:"id"`
	Day         Day       `json:"day"`
	Time        Time      `json:"time"`
	Category    string    `json:"category"`
	TrainerID   string    `json:"trainerId"`
	TrainerName string    `json:"trainerName"`
	Students    []string  `json:"students"`
	CreatedAt   time.Time `json:"createdAt"` // UTC
	UpdatedAt   time.Time `json:"updatedAt"` // UTC
}

func (s *Slot) StampServerTime(t time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t
	}
	s.UpdatedAt = t
}

func (s Slot) HasStudent(studentID string) bool {
	for _, id := range s.Students {
		if id == studentID {
			return true
		}
	}
	return false
}

// NewSlot contains the information needed to fill (or overwrite) a timetable cell.
type NewSlot struct {
	Day         Day      `json:"day" validate:"required,weekday"`
	Time        Time     `json:"time" validate:"required,slottime"`
	Category    string   `json:"category" validate:"required"`
	TrainerID   string   `json:"trainerId" validate:"required"`
	TrainerName string   `json:"trainerName"`
	Students    []string `json:"students" validate:"required,min=1,dive,required"`
}

func (ns *NewSlot) clean() {
	ns.Category = core.CleanString(ns.Category)
	ns.TrainerID = core.CleanString(ns.TrainerID)
	ns.TrainerName = core.CleanString(ns.TrainerName)

	seen := make(map[string]bool, len(ns.Students))
	students := make([]string, 0, len(ns.Students))
	for _, id := range ns.Students {
		id = core.CleanString(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		students = append(students, id)
	}
	ns.Students = students
}

// Grid is the day x time matrix of a timetable. Empty cells are absent.
type Grid map[Day]map[Time]Slot

func NewGrid(slots []Slot) Grid {
	g := make(Grid, len(Days))
	for _, s := range slots {
		row, ok := g[s.Day]
		if !ok {
			row = make(map[Time]Slot)
			g[s.Day] = row
		}
		row[s.Time] = s
	}
	return g
}

func (g Grid) Cell(day Day, t Time) (Slot, bool) {
	s, ok := g[day][t]
	return s, ok
}

// SortSlots orders slots by day of week, then by time.
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		di, dj := dayIndex[string(slots[i].Day)], dayIndex[string(slots[j].Day)]
		if di != dj {
			return di < dj
		}
		return timeIndex[string(slots[i].Time)] < timeIndex[string(slots[j].Time)]
	})
}

func slotKey(day Day, t Time) string {
	return string(day) + "_" + string(t)
}
