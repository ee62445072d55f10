package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/samaecole/backend/apps/api/echo"
	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/document"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/report"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/staff"
	"github.com/samaecole/backend/core/tenant"
	emailsvc "github.com/samaecole/backend/services/email"
	logsvc "github.com/samaecole/backend/services/logger"
	metricsvc "github.com/samaecole/backend/services/metrics"
	storagesvc "github.com/samaecole/backend/services/storage"
	"github.com/samaecole/backend/storage/database"
	sqlxrepos "github.com/samaecole/backend/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	// set up metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, conf.Database.Name),
	)
	metrics := metricsvc.NewCollector(registry)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	store := storagesvc.NewFileStore(conf)
	validate, translator := core.NewValidator()
	tx := database.NewTransactor(db)

	tenantRepo := sqlxrepos.NewTenantRepository(db)
	userRepo := sqlxrepos.NewUserRepository(db)
	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	billingRepo := sqlxrepos.NewBillingRepository(db)

	identities := identity.NewService(sqlxrepos.NewIdentityRepository(db), mailSvc, conf, validate, metrics)
	tenants := tenant.NewService(tenantRepo, tx, nil, mailSvc, conf, logger, validate)
	invitations := invitation.NewService(sqlxrepos.NewInvitationRepository(db), tx, identities, userRepo, tenantRepo,
		mailSvc, conf, logger, validate, metrics)
	tenants.SetInviter(invitations)
	resolver := access.NewResolver(identities, userRepo, tenantRepo)

	limiterStore, redisClient, err := echoapi.NewLimiterStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up rate limiter: %v", err), err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics of the API.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			Validate:     validate,
			Translator:   translator,
			Auth:         access.NewAuthenticator(identities, resolver, conf, logger),
			Identities:   identities,
			Tenants:      tenants,
			Invitations:  invitations,
			Staff:        staff.NewService(userRepo),
			School:       school.NewService(schoolRepo, tx, validate),
			Billing:      billing.NewService(billingRepo, schoolRepo, tx, validate),
			Documents:    document.NewService(billingRepo, schoolRepo, store, mailSvc, logger, metrics),
			Reports:      report.NewService(sqlxrepos.NewReportRepository(db), billingRepo, schoolRepo),
			Store:        store,
			Metrics:      metrics,
			LimiterStore: limiterStore,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
