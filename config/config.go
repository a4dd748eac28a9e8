package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url" validate:"required_if=Enabled true"`
	Labels  map[string]string `yaml:"labels"`
}

// FileLogConfig enables a rotating log file next to stdout.
type FileLogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string        `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string        `yaml:"format" validate:"omitempty,oneof=json text"`
	File   FileLogConfig `yaml:"file"`
	Loki   LokiConfig    `yaml:"loki"`
}

// TelemetryConfig toggles metric collection.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
}

// InfluxConfig tunes the backend client.
type InfluxConfig struct {
	Timeout   Duration `yaml:"timeout,omitempty"`
	Precision string   `yaml:"precision" validate:"omitempty,oneof=ns us ms s m h"`
}

// DeviceConfig is a statically configured device.
type DeviceConfig struct {
	Ref      int    `yaml:"ref" validate:"gte=0"`
	Name     string `yaml:"name" validate:"required"`
	Location string `yaml:"location"`
}

// MongoConfig points at the device collection.
type MongoConfig struct {
	URI        string   `yaml:"uri"`
	Database   string   `yaml:"database"`
	Collection string   `yaml:"collection"`
	Timeout    Duration `yaml:"timeout,omitempty"`
}

// CatalogConfig selects where device names come from.
type CatalogConfig struct {
	Type    string         `yaml:"type" validate:"oneof=static mongo"`
	Devices []DeviceConfig `yaml:"devices" validate:"dive"`
	Mongo   MongoConfig    `yaml:"mongo"`
}

// MQTTConfig configures the reading subscription.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix" validate:"required_if=Enabled true"`
	QoS         byte   `yaml:"qos" validate:"lte=2"`
}

// Config is the root configuration structure for the plugin host.
type Config struct {
	Listen         string          `yaml:"listen" validate:"required"`
	PageName       string          `yaml:"page_name" validate:"required,excludesall=/?#"`
	StateFile      string          `yaml:"state_file" validate:"required"`
	HotReload      bool            `yaml:"hot_reload"`
	ReloadInterval Duration        `yaml:"reload_interval,omitempty"`
	Logging        LoggingConfig   `yaml:"logging"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
	Influx         InfluxConfig    `yaml:"influx"`
	Catalog        CatalogConfig   `yaml:"catalog"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Listen:         ":8090",
		PageName:       "InfluxDBPersistence",
		StateFile:      "influxpersist.state.yaml",
		ReloadInterval: Duration{Duration: time.Second},
		Logging:        LoggingConfig{Level: "info", Format: "json"},
		Influx:         InfluxConfig{Timeout: Duration{Duration: 5 * time.Second}, Precision: "ms"},
		Catalog: CatalogConfig{
			Type:  "static",
			Mongo: MongoConfig{Database: "home", Collection: "devices", Timeout: Duration{Duration: 3 * time.Second}},
		},
		MQTT: MQTTConfig{ClientID: "influxpersist", TopicPrefix: "influxpersist/devices", QoS: 1},
	}
}

// LoadDotEnv loads environment variables from a .env file if it exists.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads and decodes the configuration file from disk, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if strings.EqualFold(c.Catalog.Type, "mongo") && strings.TrimSpace(c.Catalog.Mongo.URI) == "" {
		return fmt.Errorf("invalid config: catalog.mongo.uri is required for mongo catalog")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("INFLUXPERSIST_LISTEN"); ok && v != "" {
		cfg.Listen = v
	}
	if v, ok := os.LookupEnv("INFLUXPERSIST_STATE_FILE"); ok && v != "" {
		cfg.StateFile = v
	}
	if v, ok := os.LookupEnv("INFLUXPERSIST_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("INFLUXPERSIST_MONGO_URI"); ok && v != "" {
		cfg.Catalog.Mongo.URI = v
	}
	if v, ok := os.LookupEnv("INFLUXPERSIST_MQTT_PASSWORD"); ok {
		cfg.MQTT.Password = v
	}
}

// TimeoutOrDefault returns the configured backend timeout.
func (c InfluxConfig) TimeoutOrDefault() time.Duration {
	if c.Timeout.Duration <= 0 {
		return 5 * time.Second
	}
	return c.Timeout.Duration
}
