package main

import (
	"context"
	"database/sql"
	"expvar"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/feeledger/apps/api/di/dig"
	echoapi "github.com/trezcool/feeledger/apps/api/echo"
	"github.com/trezcool/feeledger/core"
	metricsvc "github.com/trezcool/feeledger/services/metrics"
	"github.com/trezcool/feeledger/storage/database"
)

// TODO: OpenAPI description of the v1 routes
func main() {
	c := dig_container.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

type runParams struct {
	dig.In
	Conf     *core.Config
	Logger   core.Logger
	DBLogger core.Logger `name:"dbLogger"`
	DB       *sql.DB
	Registry *prometheus.Registry
	Server   *echoapi.Server
}

// run serves the API until it is asked to stop, then reports the ledger totals of the process.
func run(p runParams) error {
	p.Logger.Info("fee ledger starting", map[string]interface{}{"config": p.Conf.String()})
	defer func() {
		if err := p.DB.Close(); err != nil {
			p.DBLogger.Error("closing database", err)
		}
	}()

	if err := reportDatabase(p.DB, p.Conf, p.DBLogger); err != nil {
		return err
	}
	publishVars(p.Conf, p.DB)

	// /debug/pprof (net/http/pprof) and /debug/vars (expvar) on the default mux
	go func() {
		if err := http.ListenAndServe(p.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			p.Logger.Error("debug server closed", err)
		}
	}()

	go p.Server.Start()

	var err error
	select {
	case err = <-p.Server.Errors():
		err = errors.Wrap(err, "serving API")
	case sig := <-p.Server.ShutdownSignal():
		p.Logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})
		err = shutdown(p.Server, p.Conf.Server.ShutdownTimeout, p.Logger)
	}

	logTotals(p.Registry, p.Logger)
	return err
}

// reportDatabase logs the migration version the store runs on.
func reportDatabase(db *sql.DB, conf *core.Config, logger core.Logger) error {
	version, err := database.Version(db)
	if err != nil {
		return err
	}
	logger.Info("ledger store ready", map[string]interface{}{
		"database":          conf.Database.Name,
		"host":              conf.Database.Address(),
		"migration_version": version,
		"lock_timeout":      conf.Database.LockTimeout.String(),
	})
	return nil
}

func publishVars(conf *core.Config, db *sql.DB) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewInt("assign_chunk_size").Set(int64(conf.Ledger.AssignChunkSize))
	expvar.NewString("lock_timeout").Set(conf.Database.LockTimeout.String())
	expvar.Publish("db_pool", expvar.Func(func() interface{} { return db.Stats() }))
}

// shutdown gives outstanding requests until timeout, then closes the listener.
func shutdown(server *echoapi.Server, timeout time.Duration, logger core.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("could not stop server gracefully", err)
		if err = server.Close(); err != nil {
			return errors.Wrap(err, "forcing server to stop")
		}
	}
	return nil
}

func logTotals(reg *prometheus.Registry, logger core.Logger) {
	totals, err := metricsvc.Totals(reg)
	if err != nil {
		logger.Error("reading ledger totals", err)
		return
	}
	fields := make(map[string]interface{}, len(totals))
	for k, v := range totals {
		fields[k] = v
	}
	logger.Info("ledger totals", fields)
}
