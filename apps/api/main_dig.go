package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	dig_container "github.com/trezcool/sportshub/apps/api/di/dig"
	echoapi "github.com/trezcool/sportshub/apps/api/echo"
	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/session"
	"github.com/trezcool/sportshub/services/jobs"
	"github.com/trezcool/sportshub/services/realtime"
)

func startWithDig(describe bool) {
	c := dig_container.New()
	if describe {
		must(dig_container.Describe(c))
		return
	}

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		store core.DocStore,
		sessions *session.Manager,
		hub *realtime.Hub,
		scheduler *jobs.Scheduler,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q (store: %s)", conf.Build, conf.Store.Backend))

		if err := core.ParseEmailTemplates(); err != nil {
			apiLogger.Fatal("parsing email templates", err)
		}

		defer func() {
			if err := store.Close(); err != nil {
				apiLogger.Error("closing store", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.Publish("sessions", expvar.Func(func() interface{} { return sessions.Len() }))
		expvar.Publish("rosterFeeds", expvar.Func(func() interface{} { return hub.Subscriptions() }))

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Jobs & API Service

		scheduler.Start()

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			if err := scheduler.Stop(ctx); err != nil {
				apiLogger.Error("stopping jobs", err)
			}

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}

			sessions.Shutdown()
			if err := hub.Close(); err != nil {
				apiLogger.Error("closing realtime hub", err)
			}
		}
	}))
}
