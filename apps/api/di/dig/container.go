package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/entrykart/apps/api/echo"
	"github.com/trezcool/entrykart/apps/shared"
	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	logsvc "github.com/trezcool/entrykart/services/logger"
	"github.com/trezcool/entrykart/storage"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage holds the repositories of the configured database engine.
	Storage struct {
		dig.Out
		AccessRepo      access.Repository
		SocietyRepo     society.Repository
		MaintenanceRepo maintenance.Repository
		CloseDB         func() error `name:"closeDB"`
	}

	// AppParams is everything the API binary needs to run.
	AppParams struct {
		dig.In
		Conf     *core.Config
		Logger   core.Logger
		DBLogger core.Logger  `name:"dbLogger"`
		CloseDB  func() error `name:"closeDB"`
		Server   *echoapi.Server
	}
)

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

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	repos, err := storage.Open(context.Background(), conf, true /* migrate */)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up %s storage: %v", conf.Database.Engine, err), err)
	}
	loggerParam.Logger.Info("storage ready", "engine", conf.Database.Engine)
	return Storage{
		AccessRepo:      repos.Access,
		SocietyRepo:     repos.Society,
		MaintenanceRepo: repos.Maintenance,
		CloseDB:         repos.Close,
	}
}

func newAccessService(repo access.Repository, societies society.Repository, validate *validator.Validate) access.Service {
	return access.NewService(repo, societies, validate)
}

func newMaintenanceService(
	conf *core.Config,
	repo maintenance.Repository,
	owners society.Service,
	authz access.Service,
	validate *validator.Validate,
	logger core.Logger,
) (maintenance.Service, error) {
	opts, err := maintenance.OptionsFromConfig(conf.Maintenance)
	if err != nil {
		return nil, errors.Wrap(err, "reading maintenance options")
	}
	return maintenance.NewService(repo, owners, authz, validate, logger, opts), nil
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	accessSvc access.Service,
	societySvc society.Service,
	maintenanceSvc maintenance.Service,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		AccessSvc:      accessSvc,
		SocietySvc:     societySvc,
		MaintenanceSvc: maintenanceSvc,
		Validate:       validate,
		Translator:     translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(shared.NewValidation))
	must(c.Provide(newAccessService))
	must(c.Provide(society.NewService))
	must(c.Provide(newMaintenanceService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
