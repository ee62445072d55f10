package main

import (
	"fmt"
	"os"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/tenant"
	emailsvc "github.com/samaecole/backend/services/email"
	logsvc "github.com/samaecole/backend/services/logger"
	"github.com/samaecole/backend/storage/database"
	sqlxrepos "github.com/samaecole/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf), conf)
	logger.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()
	if err = db.Ping(); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	validate, _ := core.NewValidator()
	mailSvc := emailsvc.NewConsoleService(conf, logger)

	// start CLI
	cli := commandLine{
		identities: identity.NewService(sqlxrepos.NewIdentityRepository(db), mailSvc, conf, validate),
		tenants: tenant.NewService(sqlxrepos.NewTenantRepository(db), database.NewTransactor(db), nil,
			mailSvc, conf, logger, validate),
		migrate: migrateWith(db.DB),
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		db.Close()
		os.Exit(1)
	}
}
