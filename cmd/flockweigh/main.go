// Flockweigh Core - poultry house weighing controller backend.
//
// This is the main entry point. It serves the firmware polling endpoints
// (heartbeat, calibration step reports, configuration) and the operator
// API, and fans device events out to WebSocket clients, the device history
// table, and optionally MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/flockweigh/flockweigh-core/migrations"

	"github.com/flockweigh/flockweigh-core/internal/api"
	"github.com/flockweigh/flockweigh-core/internal/audit"
	"github.com/flockweigh/flockweigh-core/internal/calibration"
	"github.com/flockweigh/flockweigh-core/internal/device"
	"github.com/flockweigh/flockweigh-core/internal/events"
	"github.com/flockweigh/flockweigh-core/internal/heartbeat"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/config"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/database"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/influxdb"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/logging"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/mqtt"
	"github.com/flockweigh/flockweigh-core/internal/provisioning"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path. Unlike an explicit path, it may be absent.
const defaultConfigPath = "configs/config.yaml"

// options holds the parsed command line.
type options struct {
	configPath  string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("flockweigh %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("flockweigh", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "",
		"path to config file (default $FLOCKWEIGH_CONFIG, then "+defaultConfigPath+")")
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting Flockweigh Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("no config file found, using defaults", "path", defaultConfigPath)
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	log = logging.New(cfg.Logging, version)

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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	history := audit.NewSQLiteRepository(db.DB)

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	sinks := []events.Sink{
		events.NewHubSink(hub),
		events.NewAuditSink(history),
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		sinks = append(sinks, events.NewMQTTSink(
			mqttClient,
			cfg.Events.BreakerMaxFailures,
			time.Duration(cfg.Events.BreakerOpenSeconds)*time.Second,
		))
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		sinks = append(sinks, events.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// The bus outlives the API server and stops before MQTT, InfluxDB and
	// the database close, so queued events still reach every sink.
	bus := events.NewBus(cfg.Events.QueueSize, sinks...)
	bus.SetLogger(log)
	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		bus.Run(busCtx)
	}()
	defer func() {
		stopBus()
		<-busDone
		log.Info("event bus stopped", "stats", bus.Stats())
	}()

	if mqttClient != nil {
		listener := events.NewCommandListener(mqttClient, registry, bus, byte(cfg.MQTT.QoS))
		listener.SetLogger(log)
		if startErr := listener.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT command listener: %w", startErr)
		}
		defer listener.Stop() //nolint:errcheck // Best-effort unsubscribe on shutdown
	}

	machine := calibration.NewMachine(registry)
	machine.SetLogger(log)
	machine.SetPublisher(bus)

	dispatcher := heartbeat.NewDispatcher(registry, cfg.Devices.LoadCellSensorID)
	dispatcher.SetLogger(log)
	dispatcher.SetPublisher(bus)

	srv, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Registry:     registry,
		Calibration:  machine,
		Heartbeat:    dispatcher,
		Provisioning: provisioning.NewBuilder(cfg.Devices.DefaultSendFrequency),
		History:      history,
		Events:       bus,
		Bus:          bus,
		DB:           db,
		MQTT:         mqttClient,
		InfluxDB:     influxClient,
		Hub:          hub,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// loadConfig resolves the config file from the flag, then FLOCKWEIGH_CONFIG,
// then the default path. Only the default path may be missing, in which case
// the built-in defaults are used and the returned path is empty.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("FLOCKWEIGH_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
			cfg := config.Default()
			return cfg, "", cfg.Validate()
		}
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// healthCheck verifies the infrastructure connections. MQTT and InfluxDB
// are checked only when enabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
