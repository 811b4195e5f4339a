package member

// Kind is the discriminant of Role.
type Kind string

const (
	KindUnknown        Kind = "unknown"
	KindStudent        Kind = "student"
	KindTrainer        Kind = "trainer"
	KindTrainerStudent Kind = "trainerstudent"
	KindInstitute      Kind = "institute"
)

// Action is something a role may do (and, in the frontend, a navigation entry).
type Action string

const (
	ActionHome             Action = "home"
	ActionStudentTimetable Action = "student-timetable"
	ActionMyAttendance     Action = "my-attendance"
	ActionFeeDetails       Action = "fee-details"
	ActionLogout           Action = "logout"

	ActionCheckIn          Action = "checkin-checkout"
	ActionTrainerTimetable Action = "trainer-timetable"
	ActionTakeAttendance   Action = "take-attendance"
	ActionTrainerFees      Action = "trainer-fees"

	ActionTrainerStudentAttendance Action = "trainer-student-attendance"
	ActionTrainerStudentFees       Action = "trainer-student-fees"

	ActionManageTimetable   Action = "manage-timetable"
	ActionAttendanceReports Action = "attendance-reports"
	ActionManageFees        Action = "manage-fees"
	ActionManageSalaries    Action = "manage-salaries"
	ActionViewRoster        Action = "view-roster"
)

var actionSets = map[Kind][]Action{
	KindStudent:        {ActionHome, ActionStudentTimetable, ActionMyAttendance, ActionFeeDetails, ActionLogout},
	KindTrainer: {
		ActionCheckIn, ActionTrainerTimetable, ActionMyAttendance, ActionTakeAttendance, ActionTrainerFees,
		ActionLogout,
	},
	KindTrainerStudent: {ActionTrainerStudentAttendance, ActionTrainerStudentFees, ActionLogout},
	KindInstitute: {
		ActionManageTimetable, ActionAttendanceReports, ActionManageFees, ActionManageSalaries,
		ActionViewRoster, ActionTakeAttendance, ActionLogout,
	},
}

// Role is what an identity is to the system. Exactly one of the profile fields is set, matching Kind.
type Role struct {
	Kind        Kind     `json:"kind"`
	Identity    Identity `json:"identity"`
	InstituteID string   `json:"instituteId,omitempty"`
	Name        string   `json:"name,omitempty"`

	Student        *Student        `json:"student,omitempty"`
	Trainer        *Trainer        `json:"trainer,omitempty"`
	TrainerStudent *TrainerStudent `json:"trainerStudent,omitempty"`
	Institute      *Institute      `json:"institute,omitempty"`
}

func UnknownRole(id Identity) Role {
	return Role{Kind: KindUnknown, Identity: id}
}

func StudentRole(id Identity, s Student) Role {
	return Role{Kind: KindStudent, Identity: id, InstituteID: s.InstituteID, Name: s.Name(), Student: &s}
}

func TrainerRole(id Identity, t Trainer) Role {
	return Role{Kind: KindTrainer, Identity: id, InstituteID: t.InstituteID, Name: t.Name(), Trainer: &t}
}

func TrainerStudentRole(id Identity, s TrainerStudent) Role {
	return Role{Kind: KindTrainerStudent, Identity: id, InstituteID: s.InstituteID, Name: s.Name(), TrainerStudent: &s}
}

func InstituteRole(id Identity, inst Institute) Role {
	return Role{Kind: KindInstitute, Identity: id, InstituteID: inst.UID, Name: inst.Name, Institute: &inst}
}

// Actions returns the action set of the role. Unknown roles get none.
func (r Role) Actions() []Action {
	set := actionSets[r.Kind]
	res := make([]Action, len(set))
	copy(res, set)
	return res
}

func (r Role) Can(action Action) bool {
	for _, a := range actionSets[r.Kind] {
		if a == action {
			return true
		}
	}
	return false
}

func (r Role) IsKnown() bool { return r.Kind != KindUnknown && r.Kind != "" }
