package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/override"
	"github.com/darasa/backend/core/progression"
	"github.com/darasa/backend/core/suspension"
	"github.com/darasa/backend/storage/database"
	postgresdb "github.com/darasa/backend/storage/database/postgres"
)

var logger *log.Logger // todo: logger service

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	sqlDB, err := database.Open(conf)
	errAndDie(err)
	defer sqlDB.Close()
	errAndDie(sqlDB.Ping())
	db := sqlx.NewDb(sqlDB, conf.Database.Engine)

	// set up services
	dir := postgresdb.NewDirectory(db)
	progRepo := postgresdb.NewProgressionRepository(db)
	progSvc := progression.NewService(progRepo, dir, dir, core.NopSink{}, conf, core.NopLogger{})
	suspSvc := suspension.NewService(postgresdb.NewSuspensionRepository(db), progSvc, dir, dir, core.NopSink{}, conf, core.NopLogger{})
	progSvc.SetSuspensionChecker(suspSvc)
	progSvc.SetFailureObserver(suspSvc)
	overSvc := override.NewService(progRepo, dir, core.NopSink{}, conf, core.NopLogger{})

	// start CLI
	cli := commandLine{
		db:      db,
		progSvc: progSvc,
		suspSvc: suspSvc,
		overSvc: overSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
