package dig_container

import (
	"context"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/sportshub/apps/api/echo"
	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/schedule"
	"github.com/trezcool/sportshub/core/session"
	emailsvc "github.com/trezcool/sportshub/services/email"
	"github.com/trezcool/sportshub/services/jobs"
	logsvc "github.com/trezcool/sportshub/services/logger"
	"github.com/trezcool/sportshub/services/realtime"
	"github.com/trezcool/sportshub/storage/docstore"
)

const storeConnectTimeout = 10 * time.Second

type StoreLoggerParam struct {
	dig.In
	Logger core.Logger `name:"storeLogger"`
}

type ServerParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Resolver   *member.Resolver
	Directory  *member.Directory
	Sessions   *session.Manager
	Schedule   *schedule.Service
	Attendance *attendance.Service
	Billing    *billing.Service
	Hub        *realtime.Hub
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStoreLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStore(conf *core.Config, loggerParam StoreLoggerParam) (core.DocStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()
	return docstore.Open(ctx, conf, loggerParam.Logger)
}

// newValidator registers the custom tags & their translations on translator.
func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	return emailsvc.New(conf, logger)
}

func newAttendanceService(conf *core.Config, store core.DocStore, validate *validator.Validate, dir *member.Directory) *attendance.Service {
	return attendance.NewService(store, validate, attendance.Options{
		Policy:   attendance.Policy(conf.Attendance.Policy),
		Location: conf.Location(),
		Roster:   dir,
	})
}

func newBillingService(
	conf *core.Config,
	store core.DocStore,
	validate *validator.Validate,
	dir *member.Directory,
	att *attendance.Service,
	mailer core.EmailService,
) *billing.Service {
	return billing.NewService(store, validate, dir, att, billing.Options{
		ReceiptPrefix: conf.Billing.ReceiptPrefix,
		Mailer:        mailer,
	})
}

func newSessionManager(conf *core.Config) *session.Manager {
	sessions := session.NewManager(conf.Server.IdleTimeout, nil)
	sessions.SetRevocationWindow(conf.Server.JWTExpirationDelta)
	return sessions
}

// newHub also makes the session manager notify clients whose session ended.
func newHub(dir *member.Directory, sessions *session.Manager, logger core.Logger) *realtime.Hub {
	hub := realtime.NewHub(dir, realtime.Options{
		Logger:     logger,
		OnActivity: func(uid string) { sessions.Touch(uid) },
	})
	sessions.SetOnClose(hub.Logout)
	return hub
}

func newScheduler(conf *core.Config, logger core.Logger, dir *member.Directory, bill *billing.Service) (*jobs.Scheduler, error) {
	sched := jobs.NewScheduler(conf, logger)
	if conf.Billing.SalaryCronEnabled {
		job := jobs.NewSalaryJob(dir, bill, logger, conf.Location())
		if err := sched.Register("salaries", conf.Billing.SalaryCron, job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Resolver:   p.Resolver,
		Directory:  p.Directory,
		Sessions:   p.Sessions,
		Schedule:   p.Schedule,
		Attendance: p.Attendance,
		Billing:    p.Billing,
		Hub:        p.Hub,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newStoreLogger, dig.Name("storeLogger")))
	must(c.Provide(newStore))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newEmailService))
	must(c.Provide(member.NewDirectory))
	must(c.Provide(member.NewResolver))
	must(c.Provide(schedule.NewService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newBillingService))
	must(c.Provide(newSessionManager))
	must(c.Provide(newHub))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

// Describe renders the dependency graph (dot format).
func Describe(c *dig.Container) error {
	return errors.Wrap(dig.Visualize(c, os.Stdout), "visualizing container")
}
