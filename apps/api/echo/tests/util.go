package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/sportshub/apps/api/echo"
	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/schedule"
	"github.com/trezcool/sportshub/core/session"
	emailsvc "github.com/trezcool/sportshub/services/email"
	inmemstore "github.com/trezcool/sportshub/storage/docstore/inmem"
	testutil "github.com/trezcool/sportshub/tests"
)

const instID = "inst1"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	app      *echoapi.Server
	conf     *core.Config
	store    *inmemstore.Store
	dir      *member.Directory
	sched    *schedule.Service
	att      *attendance.Service
	sessions *session.Manager
	mail     *emailsvc.ConsoleService
	logger   *testutil.Logger
	closed   chan string // reasons of closed sessions

	inst         member.Institute
	ravi, sita   member.Trainer
	asha, bala   member.Student
	instToken    string
	raviToken    string
	ashaToken    string
	unknownToken string
}

func setup(t *testing.T) *env {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	store := inmemstore.New()

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)

	e := &env{conf: conf, store: store, logger: logger, closed: make(chan string, 10)}
	e.dir = member.NewDirectory(store, validate)
	e.sched = schedule.NewService(store, validate)
	e.att = attendance.NewService(store, validate, attendance.Options{Location: conf.Location(), Roster: e.dir})
	e.mail = emailsvc.NewConsoleServiceMock(conf, logger)
	bill := billing.NewService(store, validate, e.dir, e.att, billing.Options{
		ReceiptPrefix: conf.Billing.ReceiptPrefix,
		Mailer:        e.mail,
	})
	e.sessions = session.NewManager(conf.Server.IdleTimeout, func(_ session.Session, reason string) { e.closed <- reason })
	t.Cleanup(e.sessions.Shutdown)

	e.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Resolver:   member.NewResolver(store),
		Directory:  e.dir,
		Sessions:   e.sessions,
		Schedule:   e.sched,
		Attendance: e.att,
		Billing:    bill,
	})

	e.inst = testutil.CreateInstitute(t, e.dir, instID, "Academy")
	e.ravi = testutil.CreateTrainer(t, e.dir, instID, "ravi", "Ravi", 30000)
	e.sita = testutil.CreateTrainer(t, e.dir, instID, "sita", "Sita", 31000)
	e.asha = testutil.CreateStudent(t, e.dir, instID, "asha", "Asha", 2000)
	e.bala = testutil.CreateStudent(t, e.dir, instID, "bala", "Bala", 1500)

	e.instToken = getToken(t, conf, e.inst.UID, e.inst.Email)
	e.raviToken = getToken(t, conf, e.ravi.UID, e.ravi.Email)
	e.ashaToken = getToken(t, conf, e.asha.UID, e.asha.Email)
	e.unknownToken = getToken(t, conf, "stranger", "stranger@mail.test")
	return e
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (e *env) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// do runs a single request and decodes the response into dst (if not nil).
func (e *env) do(t *testing.T, method, path, token string, body []byte, dst interface{}) int {
	t.Helper()
	req, rec := newAuthRequest(method, path, token, body)
	e.app.ServeHTTP(rec, req)
	if dst != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
			t.Fatalf("decoding %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, uid, email string) string {
	token, err := echoapi.GenerateToken(conf, echoapi.NewClaims(conf, member.Identity{UID: uid, Email: email}))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData checks the status code, and the body when wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
