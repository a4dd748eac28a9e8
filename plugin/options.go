package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/timzifer/influxpersist/catalog"
	"github.com/timzifer/influxpersist/config"
	"github.com/timzifer/influxpersist/influx"
	"github.com/timzifer/influxpersist/telemetry"
)

// Option customises plugin construction.
type Option func(*settings) error

type settings struct {
	config            *config.Config
	configPath        string
	logger            zerolog.Logger
	telemetry         telemetry.Collector
	telemetryProvided bool
	gatherer          prometheus.Gatherer
	backend           influx.Backend
	catalog           catalog.Catalog
}

// WithLogger provides a custom logger instance for the plugin.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		return nil
	}
}

// WithConfigPath loads the process configuration from path.
func WithConfigPath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.configPath = path
		return nil
	}
}

// WithConfig supplies an already loaded configuration instance.
func WithConfig(cfgData *config.Config) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.config = cfgData
		return nil
	}
}

// WithTelemetry injects a collector instance overriding the configuration-based behaviour.
// gatherer backs the /metrics endpoint and may be nil.
func WithTelemetry(collector telemetry.Collector, gatherer prometheus.Gatherer) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.gatherer = gatherer
		cfg.telemetryProvided = true
		return nil
	}
}

// WithBackend replaces the InfluxDB HTTP client.
func WithBackend(backend influx.Backend) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.backend = backend
		return nil
	}
}

// WithCatalog replaces the configured device catalog.
func WithCatalog(devices catalog.Catalog) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.catalog = devices
		return nil
	}
}
