// Gray Logic Hub - home automation integration hub.
//
// This is the main entry point. The hub loads the registered device
// drivers, keeps the device inventory in SQLite, dispatches commands
// through the schema catalog and relays every recorded event to the
// WebSocket, MQTT, InfluxDB and Redis sinks that are enabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/catalog"
	"github.com/nerrad567/gray-logic-hub/internal/command"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/discovery"
	"github.com/nerrad567/gray-logic-hub/internal/driver"
	"github.com/nerrad567/gray-logic-hub/internal/drivers/mqttdevice"
	"github.com/nerrad567/gray-logic-hub/internal/event"
	"github.com/nerrad567/gray-logic-hub/internal/hub"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/redis"
	"github.com/nerrad567/gray-logic-hub/migrations"
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

// sinkBuffer is the bus subscription buffer per sink.
const sinkBuffer = 256

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// registrations lists the drivers compiled into the hub. config
// drivers.enabled selects among them.
func registrations() []driver.Registration {
	return []driver.Registration{
		mqttdevice.Registration("mqtt-light", device.TypeLight),
		mqttdevice.Registration("mqtt-socket", device.TypeSocket),
		mqttdevice.Registration("mqtt-blind", device.TypeBlind),
		mqttdevice.Registration("mqtt-thermostat", device.TypeThermostat),
		mqttdevice.Registration("mqtt-sensor", device.TypeSensor),
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear start-up sequence
	log := logging.Default()
	log.Info("starting Gray Logic Hub",
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
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	cat, err := loadCatalog(cfg.Drivers.CatalogFile)
	if err != nil {
		return err
	}
	log.Info("schema catalog loaded", "types", len(cat.Types()))

	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log.Component("device"))
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// MQTT is optional; without it MQTT drivers fail to load and the MQTT
	// sink is off.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		log.Info("Redis connected", "addr", cfg.Redis.Addr, "stream", redisClient.Stream())
	} else {
		log.Info("Redis disabled")
	}

	// Event pipeline and sinks. Sinks stop when the bus closes.
	bus := event.NewBus()
	eventRepo := event.NewSQLiteRepository(db.DB)
	pipeline := event.NewPipeline(cat, eventRepo, bus)
	pipeline.SetLogger(log.Component("event"))
	pipeline.SetPageSize(cfg.Events.PageSize)

	wsHub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	sinks := []event.Sink{wsHub}
	if mqttClient != nil {
		sinks = append(sinks, event.NewMQTTSink(mqttClient))
	}
	if influxClient != nil {
		sinks = append(sinks, event.NewInfluxSink(influxClient))
	}
	if redisClient != nil {
		sinks = append(sinks, event.NewRedisSink(redisClient))
	}

	sinkCtx, stopSinks := context.WithCancel(context.Background())
	var sinkWG sync.WaitGroup
	for _, sink := range sinks {
		sub := bus.Subscribe(sinkBuffer)
		sinkWG.Add(1)
		go func(sink event.Sink) {
			defer sinkWG.Done()
			event.RunSink(sinkCtx, sub, sink, log.Component("sink"))
		}(sink)
	}
	go wsHub.Run(sinkCtx)
	defer func() {
		bus.Close()
		sinkWG.Wait()
		stopSinks()
		log.Info("event sinks stopped", "dropped", bus.Dropped())
	}()

	pruner := event.NewPruner(eventRepo, cfg.Events.Retention, cfg.Events.PruneInterval)
	pruner.SetLogger(log.Component("pruner"))
	go pruner.Run(ctx)

	// Drivers
	drivers := driver.Load(ctx, registrations(), driver.NewInterfaces(mqttClient, cfg.Drivers.HTTP), driver.Services{
		Catalog:     cat,
		Devices:     deviceRegistry,
		Settings:    driver.NewSQLiteSettingsStore(db.DB),
		Events:      pipeline,
		Bus:         bus,
		Logger:      log.Component("driver"),
		CallTimeout: cfg.Drivers.CallTimeout,
		Enabled:     cfg.DriverEnabled,
		Options:     cfg.Drivers.Options,
	})
	log.Info("drivers loaded", "loaded", len(drivers.List()), "failed", len(drivers.Failures()))

	engine := discovery.NewEngine(drivers, deviceRegistry, pipeline)
	engine.SetLogger(log.Component("discovery"))

	dispatcher := command.NewDispatcher(cat, deviceRegistry, drivers, pipeline)
	dispatcher.SetLogger(log.Component("command"))

	service := hub.New(hub.Config{
		Catalog:  cat,
		Devices:  deviceRegistry,
		Drivers:  drivers,
		Discover: engine,
		Commands: dispatcher,
		Events:   pipeline,
	})

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Service: service,
		Hub:     wsHub,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, redisClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	// Deferred Close() calls run in reverse order: API server, event
	// sinks, Redis, InfluxDB, MQTT, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadCatalog returns the catalog file when one is configured, otherwise
// the embedded default.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("loading embedded catalog: %w", err)
		}
		return cat, nil
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return cat, nil
}

// healthChecker is implemented by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all enabled infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, redisClient *redis.Client) error {
	checks := map[string]healthChecker{"database": db}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	if redisClient != nil {
		checks["redis"] = redisClient
	}

	var errs []error
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
