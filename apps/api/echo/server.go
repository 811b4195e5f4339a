package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/schedule"
	"github.com/trezcool/sportshub/core/session"
	"github.com/trezcool/sportshub/services/realtime"
)

type (
	ServerDeps struct {
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
		Hub        *realtime.Hub // optional: no /ws without it
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	auth := authMiddleware(s.deps.Resolver, s.deps.Sessions)
	ag := v1.Group("", middleware.JWTWithConfig(newJWTConfig(conf, "header:"+echo.HeaderAuthorization)), auth)

	registerSessionAPI(ag, s.deps.Sessions)
	registerTimetableAPI(ag, s.deps.Schedule)
	registerAttendanceAPI(ag, s.deps.Attendance, s.deps.Schedule, conf.Location())
	registerBillingAPI(ag, s.deps.Billing)

	if s.deps.Hub != nil {
		// browsers cannot set headers on websocket handshakes
		registerRealtimeAPI(v1, s.deps.Hub, middleware.JWTWithConfig(newJWTConfig(conf, "query:token")), auth)
	}
}

// Start blocks until the server stops. Unexpected failures are reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the owner of the server to shut it down.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
