package main

import (
	"fmt"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
	"github.com/trezcool/firststep/services/changefeed"
	"github.com/trezcool/firststep/services/logger"
	"github.com/trezcool/firststep/storage/database"
	"github.com/trezcool/firststep/storage/database/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("ADMIN : "), conf)
	logger.Enable(!conf.Debug)

	if conf.Database.Engine == "memory" {
		logger.Error("the admin commands require the postgres engine")
		return 1
	}

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Error(fmt.Sprintf("creating database: %v", err), err)
		return 1
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening database: %v", err), err)
		return 1
	}
	defer db.Close()

	// running API instances reload their catalog on the changes made here
	feed, err := changefeed.New(conf, db, database.DSN(conf.Database.Name, false, conf), logger)
	if err != nil {
		logger.Error(fmt.Sprintf("opening change feed: %v", err), err)
		return 1
	}
	defer feed.Close()

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:       conf,
		db:         db.DB,
		usrRepo:    postgresdb.NewUserRepository(db),
		journeySvc: journey.NewService(postgresdb.NewJourneyRepository(db), feed, logger),
		validate:   validate,
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("%s failed", os.Args[1]), errors.WithStack(err))
		}
		return 1
	}
	return 0
}
