package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/firststep/apps/api/echo"
	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/access"
	"github.com/trezcool/firststep/core/document"
	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
	"github.com/trezcool/firststep/services/changefeed"
	"github.com/trezcool/firststep/services/email"
	"github.com/trezcool/firststep/services/logger"
	"github.com/trezcool/firststep/services/scheduler"
	"github.com/trezcool/firststep/storage/database"
	inmemdb "github.com/trezcool/firststep/storage/database/inmem"
	postgresdb "github.com/trezcool/firststep/storage/database/postgres"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage holds the repositories of the configured database engine.
// DB is nil with the memory engine.
type Storage struct {
	dig.Out
	DB        *sqlx.DB
	Users     user.Repository
	Journey   journey.Repository
	Documents document.Repository
	Accesses  access.Repository
}

type ServerParam struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	Feed        core.ChangeFeed
	UserSvc     user.ServiceInterface
	JourneySvc  *journey.Service
	DocumentSvc *document.Service
	AccessSvc   *access.Service
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("API : "), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("DB : "), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == "memory" {
		db := inmemdb.NewDB()
		return Storage{
			Users:     inmemdb.NewUserRepository(db),
			Journey:   inmemdb.NewJourneyRepository(db),
			Documents: inmemdb.NewDocumentRepository(db),
			Accesses:  inmemdb.NewAccessRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		DB:        db,
		Users:     postgresdb.NewUserRepository(db),
		Journey:   postgresdb.NewJourneyRepository(db),
		Documents: postgresdb.NewDocumentRepository(db),
		Accesses:  postgresdb.NewAccessRepository(db),
	}
}

func newChangeFeed(conf *core.Config, db *sqlx.DB, logger core.Logger) (core.ChangeFeed, error) {
	return changefeed.New(conf, db, database.DSN(conf.Database.Name, false, conf), logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p ServerParam) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Deps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		Feed:        p.Feed,
		UserSvc:     p.UserSvc,
		JourneySvc:  p.JourneySvc,
		DocumentSvc: p.DocumentSvc,
		AccessSvc:   p.AccessSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newChangeFeed))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(journey.NewService))
	must(c.Provide(document.NewService))
	must(c.Provide(access.NewService))
	must(c.Provide(scheduler.New))
	must(c.Provide(newServer))

	if os.Getenv("DIG_VISUALIZE") != "" {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
