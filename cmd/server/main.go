package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/stationhq/cdregister/internal/config"
	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository/mongodb"
	"github.com/stationhq/cdregister/internal/scheduler"
	"github.com/stationhq/cdregister/internal/server/handlers"
	"github.com/stationhq/cdregister/internal/server/router"
	auditsvc "github.com/stationhq/cdregister/internal/service/audit"
	catalogsvc "github.com/stationhq/cdregister/internal/service/catalog"
	enginesvc "github.com/stationhq/cdregister/internal/service/engine"
	"github.com/stationhq/cdregister/internal/service/rolegate"
	witnesssvc "github.com/stationhq/cdregister/internal/service/witness"
	"github.com/stationhq/cdregister/pkg/clients/auditsink"
	"github.com/stationhq/cdregister/pkg/clients/directory"
	"github.com/stationhq/cdregister/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, err := mongodb.NewMongoStore(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	sinkClient := auditsink.NewClient(cfg.AuditSink)
	dirClient := directory.NewClient(cfg.Directory)

	ledger := auditsvc.NewLedger(sinkClient, store, baseLogger.Named("svc.audit"))
	catalog := catalogsvc.NewService(store, baseLogger.Named("svc.catalog"))
	policy := rolegate.NewPolicy(models.Grade(cfg.Register.ReferenceGrade))
	authenticator := witnesssvc.NewAuthenticator(dirClient, cfg.Register.VerifyTimeout, baseLogger.Named("svc.witness"))
	engine := enginesvc.NewEngine(store, policy, ledger, catalog, cfg.Register.CommitTimeout, baseLogger.Named("svc.engine"))

	registerHandler := handlers.NewRegisterHandler(engine, catalog, authenticator, dirClient, baseLogger.Named("handlers.register"))
	ginEngine := router.New(registerHandler, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Scheduler, ledger, catalog, baseLogger.Named("scheduler"))
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      ginEngine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
