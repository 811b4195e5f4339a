package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/attendance"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
	emailsvc "github.com/trezcool/sportshub/services/email"
	logsvc "github.com/trezcool/sportshub/services/logger"
	"github.com/trezcool/sportshub/storage/docstore"
	pgstore "github.com/trezcool/sportshub/storage/docstore/postgres"
)

var logger core.Logger

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up store
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := docstore.Open(ctx, conf, logger)
	cancel()
	errAndDie(err)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	dir := member.NewDirectory(store, validate)
	att := attendance.NewService(store, validate, attendance.Options{
		Policy:   attendance.Policy(conf.Attendance.Policy),
		Location: conf.Location(),
		Roster:   dir,
	})

	// start CLI
	var db *sql.DB
	if pg, ok := store.(*pgstore.Store); ok {
		db = pg.DB().DB
	}
	cli := commandLine{
		db:       db,
		conf:     conf,
		out:      os.Stdout,
		logger:   logger,
		resolver: member.NewResolver(store),
		dir:      dir,
		billing: billing.NewService(store, validate, dir, att, billing.Options{
			ReceiptPrefix: conf.Billing.ReceiptPrefix,
			Mailer:        emailsvc.New(conf, logger),
		}),
	}
	err = cli.run(os.Args)
	if cerr := store.Close(); cerr != nil {
		logger.Error("closing store", cerr)
	}
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
		os.Exit(1)
	}
}
