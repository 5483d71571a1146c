package main

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/apps/shared"
	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	logsvc "github.com/trezcool/entrykart/services/logger"
	"github.com/trezcool/entrykart/storage"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	// set up storage; migrations are run explicitly with `admin migrate`
	repos, err := storage.Open(context.Background(), conf, false)
	errAndDie(err)

	validate, translator := shared.NewValidation()
	opts, err := maintenance.OptionsFromConfig(conf.Maintenance)
	errAndDie(err)

	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(!conf.Debug)

	societySvc := society.NewService(repos.Society, validate)
	accessSvc := access.NewService(repos.Access, repos.Society, validate)
	cli := commandLine{
		db:             repos.SQL,
		accessSvc:      accessSvc,
		societySvc:     societySvc,
		maintenanceSvc: maintenance.NewService(repos.Maintenance, societySvc, accessSvc, validate, svcLogger, opts),
		out:            os.Stdout,
	}
	err = cli.run(os.Args)
	_ = repos.Close()
	if err != nil {
		if err != errHelp {
			printError(err, translator)
		}
		os.Exit(1)
	}
}

// printError lists validation failures field by field.
func printError(err error, translator ut.Translator) {
	var verrs validator.ValidationErrors
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			logger.Printf("error: %s: %s\n", fe.Field(), fe.Translate(translator))
		}
	case errors.As(err, &verr) && len(verr.Fields) > 0:
		for _, fe := range verr.Fields {
			logger.Printf("error: %s: %s\n", fe.Field, fe.Error)
		}
	default:
		logger.Printf("\nerror: %s\n", err)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
