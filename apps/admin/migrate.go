package main

import (
	"errors"

	pgstore "github.com/trezcool/sportshub/storage/docstore/postgres"
)

var (
	gooseRunFunc = pgstore.RunMigrations // mockable

	errNoDatabase = errors.New("migrations only apply to the postgres store")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return gooseRunFunc(args[0], cli.db, args[1:]...)
}
