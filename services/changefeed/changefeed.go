package changefeed

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
)

// Drivers
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// New opens the change feed selected by conf.ChangeFeed.Driver.
// db and dsn are only used by the postgres driver.
func New(conf *core.Config, db *sqlx.DB, dsn string, logger core.Logger) (core.ChangeFeed, error) {
	switch conf.ChangeFeed.Driver {
	case DriverPostgres, "":
		if db == nil {
			return nil, errors.New("postgres change feed requires a postgres database")
		}
		return NewPostgresFeed(db, dsn, conf.ChangeFeed.Channel, logger)
	case DriverRedis:
		return NewRedisFeed(conf.ChangeFeed.RedisAddr, conf.ChangeFeed.RedisDB, conf.ChangeFeed.Channel, logger)
	case DriverMemory:
		return NewMemoryFeed(), nil
	}
	return nil, errors.Errorf("unknown change feed driver %q", conf.ChangeFeed.Driver)
}
