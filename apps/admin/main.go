package main

import (
	"fmt"
	"os"

	"github.com/trezcool/feeledger/core"
	logsvc "github.com/trezcool/feeledger/services/logger"
	"github.com/trezcool/feeledger/storage/database"
	sqlxrepos "github.com/trezcool/feeledger/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewZapLogger(logsvc.NewZap(os.Stderr, "admin", conf.Debug))

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	store := sqlxrepos.NewStore(db, conf.Database.LockTimeout)

	// start CLI
	cli := commandLine{
		conf:   conf,
		logger: logger,
		db:     db,
		store:  store,
		roster: store,
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	if cErr := db.Close(); cErr != nil {
		logger.Error("closing database", cErr)
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
