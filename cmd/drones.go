package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dronemed/pkg/api"
	"dronemed/pkg/config"
	"dronemed/pkg/events"
	"dronemed/pkg/fleet"
	"dronemed/pkg/logger"
	"dronemed/pkg/medication"
	"dronemed/pkg/store"
	"dronemed/pkg/store/mongostore"
	"dronemed/pkg/store/redisstore"
	"dronemed/pkg/store/sqlstore"
)

type (
	environment struct {
		Config    *config.Config
		Logger    *zap.Logger
		Backend   store.Backend
		Emitter   *events.Emitter
		Drones    *fleet.Service
		Medicines *medication.Service
		Server    *api.HTTPServer
	}
)

func main() {

	log.Println("Initializing Drone Medication API.")
	configFlag := flag.String("config", "config.json", "path to config json or yaml file")
	flag.Parse()

	if *configFlag == "" {
		flag.Usage()
		log.Fatalln("config file is missing")
	}

	log.Println("parsing config file...")
	cfg, err := config.Parse(*configFlag)
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := zl.Sync(); err != nil {
			log.Printf("Error during logger sync: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := setup(ctx, cfg, zl)
	if err != nil {
		zl.Error("Failed to start", zap.Error(err))
		return
	}
	defer env.close()

	env.run(ctx, cancel)
}

func setup(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*environment, error) {

	backend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	zl.Info("Storage backend ready", zap.String("driver", cfg.Store.Driver))

	publisher, err := openPublisher(cfg.Events, zl)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	zl.Info("Event publisher ready", zap.String("backend", cfg.Events.Backend))

	env := &environment{
		Config:  cfg,
		Logger:  zl,
		Backend: backend,
		Emitter: events.NewEmitter(publisher, zl),
	}

	env.Drones = fleet.NewService(backend.Drones(), backend.Medications(), env.Emitter, zl)
	env.Medicines = medication.NewService(backend.Medications(), zl)
	env.Server = api.NewHTTPServer(fmt.Sprintf(":%s", cfg.ApiPort), env.Drones, env.Medicines, backend, zl)

	return env, nil
}

func (env *environment) run(ctx context.Context, cancel context.CancelFunc) {

	go func() {
		if err := env.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	period := time.Duration(env.Config.LogPeriodMinutes) * time.Minute
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		env.Drones.RunReporter(ctx, period)
	}()

	env.Logger.Info("Drone Medication API started",
		zap.String("url", fmt.Sprintf("%s:%s", env.Config.LocalURL, env.Config.ApiPort)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	env.Logger.Info("Shutting down...")

	cancel()
	<-reporterDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := env.Server.Shutdown(shutdownCtx); err != nil {
		env.Logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}

func (env *environment) close() {
	if err := env.Emitter.Close(); err != nil {
		env.Logger.Warn("Event publisher close failed", zap.Error(err))
	}
	if err := env.Backend.Close(); err != nil {
		env.Logger.Warn("Storage backend close failed", zap.Error(err))
	}
	env.Logger.Info("Drone Medication API stopped")
}

func openBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {

	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite", "postgres":
		return sqlstore.Open(cfg)
	case "mongo":
		return mongostore.Open(ctx, cfg.Mongo)
	case "redis":
		return redisstore.Open(ctx, cfg.Redis)
	}

	return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
}

func openPublisher(cfg config.EventsConfig, zl *zap.Logger) (events.Publisher, error) {

	switch cfg.Backend {
	case "none":
		return events.Noop{}, nil
	case "log":
		return events.NewLogPublisher(zl), nil
	case "kafka":
		return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Topic)
	case "mqtt":
		return events.NewMQTTPublisher(cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.ClientID, cfg.Topic)
	}

	return nil, errors.Errorf("unknown events backend %q", cfg.Backend)
}
