package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/apsystems2mqtt/internal/adapter/actor"
	"github.com/berfenger/apsystems2mqtt/internal/config"
	"github.com/berfenger/apsystems2mqtt/internal/core/actor"
	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/service"
	"github.com/berfenger/apsystems2mqtt/internal/server"
	"github.com/berfenger/apsystems2mqtt/internal/util/actorutil"
	"github.com/berfenger/apsystems2mqtt/pkg/apsystems"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	slog.Info("Using", "config", cfg.String())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, apsystemsActorProvider(cfg, logger), mqttActorProvider(cfg, logger),
			influxActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("spawn master", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func apsystemsActorProvider(cfg *config.Config, logger *zap.Logger) actor.APSystemsActorProvider {
	client := apsystems.NewClient(cfg.APSystems.BaseURL, cfg.APSystems.Username, cfg.APSystems.Password,
		cfg.RequestTimeout(), logger)
	poller := service.NewPoller(client, service.FixedDelayPolicy{
		Attempts: config.RECOVERY_ATTEMPTS,
		Interval: cfg.RetryDelay(),
	}, logger)
	return func() *adactor.APSystemsActor {
		return adactor.NewAPSystemsActor(client, poller, cfg.TaskTimeout(), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func influxActorProvider(cfg *config.Config, logger *zap.Logger) actor.InfluxActorProvider {
	if !cfg.Influx.Enable {
		return nil
	}
	writerProvider := adactor.InfluxWriterProvider(cfg.Influx, logger)
	return func(eventStream *eventstream.EventStream) *adactor.InfluxActor {
		return adactor.NewInfluxActor(writerProvider, eventStream, logger)
	}
}
