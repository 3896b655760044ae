package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/climate-core/internal/api"
	"github.com/nerrad567/climate-core/internal/device"
	"github.com/nerrad567/climate-core/internal/infrastructure/config"
	"github.com/nerrad567/climate-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/climate-core/internal/infrastructure/logging"
	"github.com/nerrad567/climate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/climate-core/internal/infrastructure/natsio"
	"github.com/nerrad567/climate-core/internal/ingest"
	"github.com/nerrad567/climate-core/internal/location"
	"github.com/nerrad567/climate-core/internal/reading"
	"github.com/nerrad567/climate-core/internal/topic"
)

// shutdownTimeout bounds draining transports and in-flight messages.
const shutdownTimeout = 15 * time.Second

func newServeCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion daemon and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath())
		},
	}
}

// run is the daemon, separated from the command for testability.
//
// Startup order is config, logging, database and migrations, repositories,
// ingestion, observers (InfluxDB, API), then transports. Shutdown reverses
// it: transports stop delivering, the consumer drains, then the API,
// InfluxDB and the database close.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting climated",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded",
		"path", configPath,
		"log_level", cfg.Logging.Level,
	)

	db, err := openMigratedStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	devices := device.NewRegistry(device.NewSQLiteRepository(db.Sqlx()))
	devices.SetLogger(log.With("component", "devices"))
	if err := devices.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}
	rooms := location.NewSQLiteRepository(db.Sqlx())
	readings := reading.NewSQLiteRepository(db.Sqlx())

	consumer, pipeline, err := buildIngestion(cfg, devices, readings)
	if err != nil {
		return err
	}
	consumer.SetLogger(log.With("component", "ingest"))
	log.Info("ingestion ready",
		"devices", devices.GetDeviceCount(),
		"topic_pattern", cfg.Ingest.TopicPattern,
		"device_policy", pipeline.Policy().Name(),
		"max_in_flight", cfg.Ingest.MaxInFlight,
	)

	health := map[string]api.HealthChecker{"database": db}

	if cfg.InfluxDB.Enabled {
		mirror, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		mirror.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		consumer.AddObserver(mirror)
		health["influxdb"] = mirror
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log.With("component", "api"),
			Devices:     devices,
			Rooms:       rooms,
			Readings:    readings,
			Provisioner: device.NewProvisioner(devices, rooms),
			Ingest:      consumer,
			Policy:      pipeline.Policy().Name(),
			Health:      health,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		consumer.AddObserver(server)
	} else {
		log.Info("API disabled")
	}

	sources, err := startTransports(ctx, cfg, pipeline, consumer, health, log)
	if err != nil {
		sources.stop(log)
		return err
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	sources.stop(log)

	consumer.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := consumer.Wait(waitCtx); err != nil {
		log.Warn("in-flight readings did not finish before shutdown", "error", err)
	}
	stats := consumer.Stats()
	log.Info("ingestion stopped",
		"accepted", stats.Accepted,
		"duplicates", stats.Duplicates,
		"rejected", stats.Rejected,
		"unknown_devices", stats.UnknownDevices,
		"failed", stats.Failed,
	)

	// Deferred Close() calls run in reverse order: API, InfluxDB, database.
	log.Info("climated stopped")
	return nil
}

// buildIngestion wires the topic decoder, device policy and pipeline behind
// a bounded consumer.
func buildIngestion(cfg *config.Config, devices device.Repository, readings *reading.SQLiteRepository) (*ingest.Consumer, *ingest.Pipeline, error) {
	decoder, err := topic.Compile(cfg.Ingest.TopicPattern)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling topic pattern: %w", err)
	}
	policy, err := device.PolicyByName(cfg.Ingest.DevicePolicy, devices)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := ingest.NewPipeline(ingest.Config{
		Decoder:           decoder,
		DevicePlaceholder: cfg.Ingest.DevicePlaceholder,
		Policy:            policy,
		Devices:           devices,
		Readings:          readings,
		Source:            cfg.Ingest.Source,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating ingestion pipeline: %w", err)
	}
	return ingest.NewConsumer(pipeline, cfg.Ingest.MaxInFlight), pipeline, nil
}

// transports holds the message sources feeding the consumer.
type transports struct {
	mqtt *mqtt.Client
	nats *natsio.Client
}

// stop closes every transport so no new message reaches the consumer.
// NATS is drained, so messages already received are still handled.
func (t *transports) stop(log *logging.Logger) {
	if t.mqtt != nil {
		log.Info("disconnecting from MQTT")
		if err := t.mqtt.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
		t.mqtt = nil
	}
	if t.nats != nil {
		log.Info("draining NATS")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := t.nats.Drain(ctx); err != nil {
			log.Error("error draining NATS", "error", err)
		}
		cancel()
		t.nats = nil
	}
}

// startTransports connects the enabled transports and subscribes them to
// the topic pattern. On error the returned transports hold whatever was
// already connected.
func startTransports(
	ctx context.Context,
	cfg *config.Config,
	pipeline *ingest.Pipeline,
	consumer *ingest.Consumer,
	health map[string]api.HealthChecker,
	log *logging.Logger,
) (*transports, error) {
	t := &transports{}
	filter := pipeline.Decoder().SubscriptionFilter()

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return t, fmt.Errorf("connecting to MQTT: %w", err)
		}
		t.mqtt = client
		client.SetLogger(log.With("component", "mqtt"))
		client.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		err = client.Subscribe(filter, byte(cfg.MQTT.QoS), func(msg mqtt.Message) error {
			// The consumer logs every outcome.
			consumer.Handle(ctx, msg.Topic, msg.Payload, ingest.Meta{ //nolint:errcheck // logged by the consumer
				Retained:  msg.Retained,
				QoS:       msg.QoS,
				MessageID: msg.ID(),
			})
			return nil
		})
		if err != nil {
			return t, fmt.Errorf("subscribing to %q: %w", filter, err)
		}
		health["mqtt"] = client
		log.Info("MQTT subscribed",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"filter", filter,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.NATS.Enabled {
		client, err := natsio.Connect(cfg.NATS)
		if err != nil {
			return t, fmt.Errorf("connecting to NATS: %w", err)
		}
		t.nats = client
		client.SetLogger(log.With("component", "nats"))

		err = client.SubscribeFilter(filter, func(msg natsio.Message) error {
			consumer.Handle(ctx, msg.Topic, msg.Payload, ingest.Meta{ //nolint:errcheck // logged by the consumer
				MessageID: msg.MessageID,
				Source:    reading.SourceNATS,
			})
			return nil
		})
		if err != nil {
			return t, fmt.Errorf("subscribing NATS to %q: %w", filter, err)
		}
		health["nats"] = client
		log.Info("NATS subscribed", "url", cfg.NATS.URL, "filter", filter)
	} else {
		log.Info("NATS disabled")
	}

	if t.mqtt == nil && t.nats == nil {
		log.Warn("no transport enabled; only the API is serving")
	}
	return t, nil
}
