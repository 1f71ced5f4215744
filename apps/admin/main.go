package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
	logsvc "github.com/trezcool/podium/services/logger"
	"github.com/trezcool/podium/services/sweeper"
	"github.com/trezcool/podium/storage/database"
	sqlxrepos "github.com/trezcool/podium/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug)

	// set up DB
	ctx := context.Background()
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	catalog, err := achievement.LoadConfiguredCatalog(conf, validate, translator)
	errAndDie(err)
	stats := sqlxrepos.NewStatsSource(db)
	svc := achievement.NewService(catalog, sqlxrepos.NewAchievementRepository(db), stats, appLogger, conf)

	// start CLI
	cli := commandLine{
		conf:       conf,
		db:         db,
		svc:        svc,
		stats:      stats,
		sweeper:    sweeper.New(svc, stats, appLogger, conf),
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
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
