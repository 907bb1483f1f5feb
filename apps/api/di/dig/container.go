package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/feeledger/apps/api/echo"
	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	logsvc "github.com/trezcool/feeledger/services/logger"
	metricsvc "github.com/trezcool/feeledger/services/metrics"
	"github.com/trezcool/feeledger/storage/database"
	sqlxrepos "github.com/trezcool/feeledger/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	CatalogSvc    *fee.CatalogService
	AssignmentSvc *fee.AssignmentService
	LedgerSvc     *fee.LedgerService
	QuerySvc      *fee.QueryService
	Registry      *prometheus.Registry
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZap(os.Stdout, "api", conf.Debug), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZap(os.Stdout, "db", conf.Debug), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sql.DB {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newStore(db *sql.DB, conf *core.Config) (fee.Store, fee.RosterProvider) {
	store := sqlxrepos.NewStore(db, conf.Database.LockTimeout)
	return store, store
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func newMetrics(reg *prometheus.Registry) fee.Metrics {
	return metricsvc.NewPrometheus(reg)
}

func newAssignmentService(store fee.Store, roster fee.RosterProvider, logger core.Logger, metrics fee.Metrics, conf *core.Config) *fee.AssignmentService {
	return fee.NewAssignmentService(store, roster, logger, metrics, conf.Ledger.AssignChunkSize)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		CatalogSvc:    p.CatalogSvc,
		AssignmentSvc: p.AssignmentSvc,
		LedgerSvc:     p.LedgerSvc,
		QuerySvc:      p.QuerySvc,
		Gatherer:      p.Registry,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newStore))
	must(c.Provide(newRegistry))
	must(c.Provide(newMetrics))
	must(c.Provide(fee.NewCatalogService))
	must(c.Provide(newAssignmentService))
	must(c.Provide(fee.NewLedgerService))
	must(c.Provide(fee.NewQueryService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
