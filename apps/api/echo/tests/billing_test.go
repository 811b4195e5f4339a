package tests

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sportshub/apps/api/echo"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/billing"
	testutil "github.com/trezcool/sportshub/tests"
)

var receiptRgx = regexp.MustCompile(`^TRN-\d{4}\d{1,2}-\d{4}$`)

func Test_billingApi_fees(t *testing.T) {
	e := setup(t)

	fee := marshalObj(t, billing.NewFee{
		StudentID: e.asha.UID, Month: 6, Year: 2024, BaseFee: 2000, Discount: 200, ExtraCharges: 50, PaymentMode: billing.ModeCash,
	})

	e.run(t, []httpTest{
		{name: "Institute only", method: http.MethodPost, path: "/v1/fees", token: e.ashaToken, body: fee, wantCode: http.StatusForbidden},
		{
			name: "Discount above base fee", method: http.MethodPost, path: "/v1/fees", token: e.instToken,
			body:     []byte(`{"studentId":"asha","month":6,"year":2024,"baseFee":100,"discount":200,"paymentMode":"Cash"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "Unknown student", method: http.MethodPost, path: "/v1/fees", token: e.instToken,
			body:     []byte(`{"studentId":"nobody","month":6,"year":2024,"baseFee":100,"paymentMode":"Cash"}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"studentId": "unknown student"}),
		},
	})

	var created billing.Fee
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/fees", e.instToken, fee, &created))
	assert.Equal(t, 1850.0, created.FinalAmount)
	assert.Equal(t, billing.FeePending, created.Status)
	assert.Regexp(t, receiptRgx, created.ReceiptNo)
	assert.NotEmpty(t, created.ID)

	sent := e.mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, e.asha.Email, sent[0].To[0].Address)

	e.run(t, []httpTest{
		{
			name: "Same period twice", method: http.MethodPost, path: "/v1/fees", token: e.instToken, body: fee,
			wantCode: http.StatusConflict, wantData: marshalObj(t, httpErr{Error: billing.ErrFeeExists.Error()}),
		},
		{name: "Own fees", path: "/v1/fees", token: e.ashaToken, wantCode: http.StatusOK, wantData: marshalObj(t, []billing.Fee{created})},
		{name: "Not in a trainer's books", path: "/v1/fees?studentId=asha", token: e.raviToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})

	// students can never list someone else's fees
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/fees", e.instToken, marshalObj(t, billing.NewFee{
		StudentID: e.bala.UID, Month: 6, Year: 2024, BaseFee: 1500, PaymentMode: billing.ModeUPI,
	}), nil))
	var fees []billing.Fee
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/fees?studentId=bala", e.ashaToken, nil, &fees))
	require.Len(t, fees, 1)
	assert.Equal(t, e.asha.UID, fees[0].StudentID)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/fees", e.instToken, nil, &fees))
	assert.Len(t, fees, 2)

	// lifecycle
	var paid billing.Fee
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/v1/fees/"+created.ID+"/paid", e.instToken, nil, &paid))
	assert.Equal(t, billing.FeePaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	e.run(t, []httpTest{
		{
			name: "Paid is terminal", method: http.MethodPost, path: "/v1/fees/" + created.ID + "/paid", token: e.instToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"status": billing.ErrFeeAlreadyPaid.Error()}),
		},
		{name: "Unknown fee", method: http.MethodPost, path: "/v1/fees/nope/paid", token: e.instToken, wantCode: http.StatusNotFound},
		{name: "Delete", method: http.MethodDelete, path: "/v1/fees/" + created.ID, token: e.instToken, wantCode: http.StatusNoContent},
		{name: "Deleted", method: http.MethodDelete, path: "/v1/fees/" + created.ID, token: e.instToken, wantCode: http.StatusNotFound},
	})
}

func Test_billingApi_trainerFees(t *testing.T) {
	e := setup(t)
	mira := testutil.CreateTrainerStudent(t, e.dir, e.ravi.UID, "mira", "Mira", 2000)
	nila := testutil.CreateTrainerStudent(t, e.dir, e.sita.UID, "nila", "Nila", 1800)
	sitaToken := getToken(t, e.conf, e.sita.UID, e.sita.Email)
	miraToken := getToken(t, e.conf, mira.UID, mira.Email)

	fee := marshalObj(t, billing.NewFee{StudentID: mira.UID, Month: 6, Year: 2024, BaseFee: 2000, PaymentMode: billing.ModeCash})

	e.run(t, []httpTest{
		{name: "Trainer students cannot create fees", method: http.MethodPost, path: "/v1/fees", token: miraToken, body: fee, wantCode: http.StatusForbidden},
		{
			name: "Another trainer's student", method: http.MethodPost, path: "/v1/fees", token: e.raviToken,
			body:     marshalObj(t, billing.NewFee{StudentID: nila.UID, Month: 6, Year: 2024, BaseFee: 1800, PaymentMode: billing.ModeCash}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"studentId": "unknown student"}),
		},
		{
			name: "Institute student", method: http.MethodPost, path: "/v1/fees", token: e.raviToken,
			body:     marshalObj(t, billing.NewFee{StudentID: e.asha.UID, Month: 6, Year: 2024, BaseFee: 2000, PaymentMode: billing.ModeCash}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"studentId": "unknown student"}),
		},
	})

	var created billing.Fee
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/fees", e.raviToken, fee, &created))
	assert.Equal(t, e.ravi.UID, created.TrainerID)
	assert.Equal(t, 2000.0, created.FinalAmount)
	assert.Equal(t, billing.FeePending, created.Status)
	assert.Regexp(t, receiptRgx, created.ReceiptNo)

	sent := e.mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, mira.Email, sent[0].To[0].Address)

	e.run(t, []httpTest{
		{
			name: "Same period twice", method: http.MethodPost, path: "/v1/fees", token: e.raviToken, body: fee,
			wantCode: http.StatusConflict, wantData: marshalObj(t, httpErr{Error: billing.ErrFeeExists.Error()}),
		},
		{name: "Trainer's books", path: "/v1/fees", token: e.raviToken, wantCode: http.StatusOK, wantData: marshalObj(t, []billing.Fee{created})},
		{name: "Trainer student's own fees", path: "/v1/fees", token: miraToken, wantCode: http.StatusOK, wantData: marshalObj(t, []billing.Fee{created})},
		{name: "Other trainers see nothing", path: "/v1/fees", token: sitaToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "Institute books are separate", path: "/v1/fees", token: e.instToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "Other trainers cannot pay", method: http.MethodPost, path: "/v1/fees/" + created.ID + "/paid", token: sitaToken, wantCode: http.StatusNotFound},
		{name: "Other trainers cannot delete", method: http.MethodDelete, path: "/v1/fees/" + created.ID, token: sitaToken, wantCode: http.StatusNotFound},
	})

	var paid billing.Fee
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/v1/fees/"+created.ID+"/paid", e.raviToken, nil, &paid))
	assert.Equal(t, billing.FeePaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	e.run(t, []httpTest{
		{name: "Delete", method: http.MethodDelete, path: "/v1/fees/" + created.ID, token: e.raviToken, wantCode: http.StatusNoContent},
		{name: "Deleted", path: "/v1/fees", token: e.raviToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})
}

func (e *env) checkIns(t *testing.T, trainerID, month string, presentDays int) {
	for d := 1; d <= presentDays; d++ {
		_, err := e.att.CheckIn(context.Background(), instID, trainerID, attendance.NewCheckIn{
			Date: testutil.Date(month, d), Status: attendance.Present,
		})
		require.NoError(t, err)
	}
}

func Test_billingApi_salaries(t *testing.T) {
	e := setup(t)
	e.checkIns(t, e.ravi.UID, "2024-06", 25)

	e.run(t, []httpTest{
		{
			name: "Institute only", method: http.MethodPost, path: "/v1/salaries", token: e.raviToken,
			body: marshalObj(t, echoapi.SalaryRequest{TrainerID: e.ravi.UID, Month: "2024-06"}), wantCode: http.StatusForbidden,
		},
		{
			name: "Bad month", method: http.MethodPost, path: "/v1/salaries", token: e.instToken,
			body: marshalObj(t, echoapi.SalaryRequest{TrainerID: e.ravi.UID, Month: "June"}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"month": "must be a month formatted as YYYY-MM"}),
		},
		{
			name: "Unknown trainer", method: http.MethodPost, path: "/v1/salaries", token: e.instToken,
			body: marshalObj(t, echoapi.SalaryRequest{TrainerID: "nobody", Month: "2024-06"}), wantCode: http.StatusNotFound,
		},
		{
			name: "Status before generation", path: "/v1/salaries/status?trainerId=ravi&month=2024-06", token: e.instToken,
			wantCode: http.StatusOK, wantData: []byte(`{"status":"pending"}`),
		},
	})

	var sal billing.Salary
	body := marshalObj(t, echoapi.SalaryRequest{TrainerID: e.ravi.UID, Month: "2024-06"})
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/salaries", e.instToken, body, &sal))
	assert.Equal(t, 30, sal.TotalDays)
	assert.Equal(t, 25, sal.PresentDays)
	assert.Equal(t, 5, sal.AbsentDays)
	assert.Equal(t, 1000.0, sal.PerDaySalary)
	assert.Equal(t, 25000.0, sal.PayableSalary)
	assert.Equal(t, billing.SalaryGenerated, sal.Status)

	var paid billing.Salary
	pay := marshalObj(t, echoapi.PaymentRequest{Mode: billing.ModeBank})
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/v1/salaries/"+sal.ID+"/paid", e.instToken, pay, &paid))
	assert.Equal(t, billing.SalaryPaid, paid.Status)

	e.run(t, []httpTest{
		{
			name: "Paid salaries are not regenerated", method: http.MethodPost, path: "/v1/salaries", token: e.instToken, body: body,
			wantCode: http.StatusConflict, wantData: marshalObj(t, httpErr{Error: billing.ErrSalaryPaid.Error()}),
		},
		{
			name: "Bad payment mode", method: http.MethodPost, path: "/v1/salaries/" + sal.ID + "/paid", token: e.instToken,
			body: marshalObj(t, echoapi.PaymentRequest{Mode: "Cheque"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "Status after payment", path: "/v1/salaries/status?trainerId=ravi&month=2024-06", token: e.instToken,
			wantCode: http.StatusOK, wantData: []byte(`{"status":"paid"}`),
		},
	})

	var bulk echoapi.BulkSalaryResponse
	all := marshalObj(t, echoapi.SalaryRequest{Month: "2024-06"})
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/salaries/all", e.instToken, all, &bulk))
	require.Len(t, bulk.Generated, 1)
	assert.Equal(t, e.sita.UID, bulk.Generated[0].TrainerID)
	assert.Equal(t, 0.0, bulk.Generated[0].PayableSalary)
	assert.Equal(t, []string{e.ravi.UID}, bulk.Skipped)

	var sals []billing.Salary
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/salaries?month=2024-06", e.instToken, nil, &sals))
	assert.Len(t, sals, 2)
}

func Test_billingApi_partialAndStoreFailures(t *testing.T) {
	e := setup(t)
	e.checkIns(t, e.ravi.UID, "2024-06", 10)

	e.store.FailOn(func(op, coll, id string) error {
		if op == "get" && id == "sita_2024-06" {
			return assert.AnError
		}
		return nil
	})

	var bulk echoapi.BulkSalaryResponse
	all := marshalObj(t, echoapi.SalaryRequest{Month: "2024-06"})
	require.Equal(t, http.StatusMultiStatus, e.do(t, http.MethodPost, "/v1/salaries/all", e.instToken, all, &bulk))
	require.Len(t, bulk.Generated, 1)
	assert.Equal(t, e.ravi.UID, bulk.Generated[0].TrainerID)
	assert.Contains(t, bulk.Failed, e.sita.UID)

	e.store.FailOn(func(op, coll, id string) error {
		if op == "query" {
			return assert.AnError
		}
		return nil
	})
	e.run(t, []httpTest{
		{
			name: "Store down", path: "/v1/fees", token: e.instToken, wantCode: http.StatusServiceUnavailable,
			wantData: marshalObj(t, httpErr{Error: "the data store is unavailable, please retry"}),
		},
	})
}
