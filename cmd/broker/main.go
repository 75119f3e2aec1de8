// Command broker wires the durable store, schema, subscriber registry, and
// broker network together and runs until terminated — the CLI/harness
// surface spec.md §6 treats as external, modeled on the teacher's cmd/
// multi/main.go wiring shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/pubsub-fabric/internal/config"
	"github.com/adred-codev/pubsub-fabric/internal/logging"
	"github.com/adred-codev/pubsub-fabric/internal/metrics"
	"github.com/adred-codev/pubsub-fabric/internal/network"
	"github.com/adred-codev/pubsub-fabric/internal/schema"
	"github.com/adred-codev/pubsub-fabric/internal/store"
	"github.com/adred-codev/pubsub-fabric/internal/subscriber"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides PSF_LOG_LEVEL)")
	flag.Parse()

	bootLogger := logging.New(logging.Config{Level: logging.LevelInfo, Format: logging.FormatJSON})

	maxProcs := runtime.GOMAXPROCS(0)
	bootLogger.Info().Int("gomaxprocs", maxProcs).Msg("GOMAXPROCS resolved via automaxprocs")

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LoggingConfig())
	cfg.LogConfig(logger)

	sch, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load schema")
	}
	logger.Info().Int("field_count", len(sch.Fields)).Msg("schema loaded")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("failed to reach durable store")
	}

	durableStore := store.NewRedisStore(redisClient, cfg.StoreTTL)
	registry := subscriber.NewRegistry()
	collector := metrics.New()

	net := network.New(network.Config{
		BrokerCount:      cfg.BrokerCount,
		DefaultWindow:    cfg.DefaultWindow,
		HealthCheckEvery: cfg.HealthCheckEvery,
		PublishRate:      float64(cfg.MaxPublishRate),
		PublishBurst:      cfg.PublishBurst,
	}, durableStore, registry, logger, collector, sch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := net.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start broker network")
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: collector.Handler()}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down broker network")
	_ = metricsServer.Close()
	net.Stop()
	fmt.Println("broker network stopped")
}
