package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/podium/apps/api/echo"
	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
	logsvc "github.com/trezcool/podium/services/logger"
	"github.com/trezcool/podium/services/sweeper"
	"github.com/trezcool/podium/storage/database"
	sqlxrepos "github.com/trezcool/podium/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

// newValidator returns a validator ready for the catalog and the API payloads.
func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	return validate, translator
}

func newScheduler(svc *achievement.Service, logger core.Logger, conf *core.Config) (*achievement.Scheduler, error) {
	return achievement.NewScheduler(svc, logger, conf)
}

func newSweeper(svc *achievement.Service, stats achievement.StatsSource, logger core.Logger, conf *core.Config) *sweeper.Sweeper {
	return sweeper.New(svc, stats, logger, conf)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewAchievementRepository, dig.As(new(achievement.Repository))))
	must(c.Provide(sqlxrepos.NewStatsSource, dig.As(new(achievement.StatsSource))))
	must(c.Provide(newValidator))
	must(c.Provide(achievement.LoadConfiguredCatalog))
	must(c.Provide(achievement.NewService))
	must(c.Provide(newScheduler))
	must(c.Provide(newSweeper))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
