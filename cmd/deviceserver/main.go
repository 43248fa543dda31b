// Device Server - IoT device communication gateway
//
// This is the main entry point for the device server. It bridges devices
// on an MQTT broker and the HTTP clients that manage them:
//   - Commands and settings from the mobile app are validated and published
//   - Readings and settings reported by devices are audited, stored and
//     fanned out to the optional sinks (InfluxDB, Kafka, Redis, WebSocket)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/device-server/migrations"

	"github.com/nerrad567/device-server/internal/api"
	"github.com/nerrad567/device-server/internal/audit"
	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/dispatch"
	"github.com/nerrad567/device-server/internal/gateway"
	"github.com/nerrad567/device-server/internal/handlers"
	"github.com/nerrad567/device-server/internal/infrastructure/cache"
	"github.com/nerrad567/device-server/internal/infrastructure/config"
	"github.com/nerrad567/device-server/internal/infrastructure/database"
	"github.com/nerrad567/device-server/internal/infrastructure/influxdb"
	"github.com/nerrad567/device-server/internal/infrastructure/kafka"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
	"github.com/nerrad567/device-server/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupGreeting is published on the debug topic once the gateway is up.
const startupGreeting = "hi"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear bootstrap sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting device server",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Relational store
	db, err := database.Open(database.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		DSN:         cfg.Database.DSN,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Driver())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	readings := device.NewSQLReadingRepository(db, cfg.GetCommandTimeout())
	auditRepo := audit.NewSQLRepository(db)

	settingsStore, err := device.OpenSettingsStore(cfg.SettingsStore.Path)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	defer func() {
		if closeErr := settingsStore.Close(); closeErr != nil {
			log.Error("error closing settings store", "error", closeErr)
		}
	}()
	log.Info("settings store opened", "path", cfg.SettingsStore.Path)

	// Live feed hub, shared by the LiveFeed handler and the API server
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(hubCtx)

	// Handlers, in invocation order
	registered := []dispatch.Handler{
		handlers.NewAuditLogger(auditRepo, log),
		handlers.NewSettingsChange(settingsStore, log),
		handlers.NewReadingsIngestion(readings, log),
	}

	sinks, err := connectSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sinks.close(log)
	registered = append(registered, sinks.handlers()...)
	registered = append(registered, handlers.NewLiveFeed(hub))

	dispatcher := dispatch.New(log, registered...)
	log.Info("handlers registered", "handlers", dispatcher.Handlers())

	queue, err := dispatch.NewQueue(dispatcher, cfg.Dispatch.BufferSize, log)
	if err != nil {
		return fmt.Errorf("creating inbound queue: %w", err)
	}

	// Broker link and gateway
	link := mqtt.New(cfg.MQTT, log)
	link.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	link.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	gwOpts := []gateway.Option{gateway.WithDebugTopic(cfg.MQTT.Debug.Topic)}
	if cfg.MQTT.Debug.Enabled {
		gwOpts = append(gwOpts, gateway.WithObserver(
			gateway.NewBrokerDebugObserver(link, cfg.MQTT.Debug.Topic, log),
		))
	}
	gw := gateway.New(link, queue, log, gwOpts...)

	if startErr := gw.Start(ctx); startErr != nil {
		return fmt.Errorf("starting gateway: %w", startErr)
	}
	defer func() {
		log.Info("stopping gateway")
		if stopErr := gw.Stop(); stopErr != nil {
			log.Error("error stopping gateway", "error", stopErr)
		}
	}()
	log.Info("gateway started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	if cfg.MQTT.Debug.Enabled {
		if debugErr := gw.SendDebug(ctx, startupGreeting); debugErr != nil {
			log.Warn("startup debug message failed", "error", debugErr)
		}
	}

	// HTTP API
	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Gateway:  gw,
		Readings: readings,
		Settings: settingsStore,
		DB:       db,
		Audit:    auditRepo,
		Hub:      hub,
		Version:  version,
	}
	if sinks.cache != nil {
		deps.Cache = sinks.cache
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, gw, sinks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("device server stopped")
	return nil
}

// getConfigPath returns the config file path from DEVICESERVER_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv("DEVICESERVER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// sinks holds the optional reading sinks that are switched on in config.
type sinks struct {
	influx *influxdb.Mirror
	kafka  *kafka.Producer
	cache  *cache.Cache
}

// connectSinks connects every enabled sink. A sink that is enabled but
// unreachable is a startup error.
func connectSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) (*sinks, error) {
	s := &sinks{}

	if cfg.InfluxDB.Enabled {
		mirror, err := influxdb.Connect(ctx, cfg.InfluxDB, log)
		if err != nil {
			s.close(log)
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		s.influx = mirror
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			s.close(log)
			return nil, fmt.Errorf("creating Kafka producer: %w", err)
		}
		s.kafka = producer
		log.Info("Kafka forwarding enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		log.Info("Kafka forwarding disabled")
	}

	if cfg.Redis.Enabled {
		c, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			s.close(log)
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		s.cache = c
		log.Info("Redis cache connected", "addr", cfg.Redis.Addr, "ttl", c.TTL())
	} else {
		log.Info("Redis cache disabled")
	}

	return s, nil
}

// handlers returns the dispatch handlers for the connected sinks.
func (s *sinks) handlers() []dispatch.Handler {
	var hs []dispatch.Handler
	if s.influx != nil {
		hs = append(hs, handlers.NewInfluxMirror(s.influx))
	}
	if s.kafka != nil {
		hs = append(hs, handlers.NewKafkaForwarder(s.kafka))
	}
	if s.cache != nil {
		hs = append(hs, handlers.NewReadingCache(s.cache))
	}
	return hs
}

// close shuts every connected sink down, logging failures.
func (s *sinks) close(log *logging.Logger) {
	var errs []error
	if s.influx != nil {
		log.Info("closing InfluxDB connection")
		errs = append(errs, s.influx.Close())
	}
	if s.kafka != nil {
		log.Info("closing Kafka producer")
		errs = append(errs, s.kafka.Close())
	}
	if s.cache != nil {
		log.Info("closing Redis cache")
		errs = append(errs, s.cache.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("error closing sinks", "error", err)
	}
}

// healthCheck verifies every connected component once after startup.
func healthCheck(ctx context.Context, db *database.DB, gw *gateway.Gateway, s *sinks) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := gw.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if s.influx != nil {
		if err := s.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}
