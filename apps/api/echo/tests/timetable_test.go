package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sportshub/apps/api/echo"
	"github.com/trezcool/sportshub/core/schedule"
)

func (e *env) createSlot(t *testing.T, day schedule.Day, tm schedule.Time, trainerID string, students ...string) schedule.Slot {
	slot, err := e.sched.UpsertSlot(context.Background(), instID, schedule.NewSlot{
		Day: day, Time: tm, Category: "Football", TrainerID: trainerID, Students: students,
	})
	require.NoError(t, err)
	return slot
}

func Test_timetableApi_upsert(t *testing.T) {
	e := setup(t)

	valid := marshalObj(t, schedule.NewSlot{
		Day: schedule.Mon, Time: "09:00", Category: " Football ", TrainerID: e.ravi.UID, Students: []string{e.asha.UID},
	})

	e.run(t, []httpTest{
		{name: "Auth required", method: http.MethodPut, path: "/v1/timetable", body: valid, wantCode: http.StatusUnauthorized},
		{
			name: "Institute only", method: http.MethodPut, path: "/v1/timetable", body: valid, token: e.raviToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Invalid slot", method: http.MethodPut, path: "/v1/timetable", token: e.instToken,
			body: []byte(`{"day":"Monday","time":"18:00","category":"Football","trainerId":"ravi","students":["asha"]}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"day":  "must be one of Mon, Tue, Wed, Thu, Fri, Sat, Sun",
				"time": "must be an hourly slot between 09:00 and 17:00",
			}),
		},
		{name: "Malformed body", method: http.MethodPut, path: "/v1/timetable", token: e.instToken, body: []byte(`{`), wantCode: http.StatusBadRequest},
		{name: "Create", method: http.MethodPut, path: "/v1/timetable", body: valid, token: e.instToken, wantCode: http.StatusOK},
	})

	// overwriting the cell keeps one slot
	again := marshalObj(t, schedule.NewSlot{
		Day: schedule.Mon, Time: "09:00", Category: "Cricket", TrainerID: e.sita.UID, Students: []string{e.bala.UID},
	})
	var slot schedule.Slot
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/v1/timetable", e.instToken, again, &slot))
	assert.Equal(t, "Cricket", slot.Category)

	slots, err := e.sched.ListSlots(context.Background(), instID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, []string{e.bala.UID}, slots[0].Students)
}

func Test_timetableApi_query(t *testing.T) {
	e := setup(t)
	mon := e.createSlot(t, schedule.Mon, "09:00", e.ravi.UID, e.asha.UID, e.bala.UID)
	tue := e.createSlot(t, schedule.Tue, "17:00", e.sita.UID, e.bala.UID)

	var resp echoapi.TimetableResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/timetable", e.ashaToken, nil, &resp))
	assert.Len(t, resp.Days, 7)
	assert.Len(t, resp.Times, 9)
	assert.Len(t, resp.Slots, 2)
	cell, ok := resp.Grid.Cell(schedule.Tue, "17:00")
	require.True(t, ok)
	assert.Equal(t, tue.ID, cell.ID)

	e.run(t, []httpTest{
		{name: "Unknown role", path: "/v1/timetable", token: e.unknownToken, wantCode: http.StatusForbidden},
		{name: "Cell", path: "/v1/timetable/Mon/09:00", token: e.raviToken, wantCode: http.StatusOK, wantData: marshalObj(t, mon)},
		{name: "Empty cell", path: "/v1/timetable/Wed/09:00", token: e.raviToken, wantCode: http.StatusNotFound},
		{name: "Unknown day", path: "/v1/timetable/Someday/09:00", token: e.raviToken, wantCode: http.StatusNotFound},
	})
}

func Test_timetableApi_mine(t *testing.T) {
	e := setup(t)
	mon := e.createSlot(t, schedule.Mon, "09:00", e.ravi.UID, e.asha.UID)
	tue := e.createSlot(t, schedule.Tue, "10:00", e.sita.UID, e.asha.UID, e.bala.UID)
	e.createSlot(t, schedule.Wed, "11:00", e.ravi.UID, e.bala.UID)

	tests := []struct {
		name    string
		token   string
		wantIDs []string
	}{
		{"student", e.ashaToken, []string{mon.ID, tue.ID}},
		{"trainer", e.raviToken, []string{mon.ID, "Wed_11:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp echoapi.TimetableResponse
			require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/timetable/mine", tt.token, nil, &resp))
			ids := make([]string, 0, len(resp.Slots))
			for _, s := range resp.Slots {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	e.run(t, []httpTest{
		{name: "Institute has no own slots", path: "/v1/timetable/mine", token: e.instToken, wantCode: http.StatusForbidden},
	})
}
