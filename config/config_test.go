package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "listen: \":9000\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Listen)
	require.Equal(t, "InfluxDBPersistence", cfg.PageName)
	require.Equal(t, 5*time.Second, cfg.Influx.Timeout.Duration)
	require.Equal(t, "static", cfg.Catalog.Type)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `listen: ":8091"
page_name: persist
state_file: /var/lib/influxpersist/state.yaml
hot_reload: true
reload_interval: 2s
logging:
  level: debug
  format: text
influx:
  timeout: 3s
  precision: s
catalog:
  type: static
  devices:
    - ref: 12
      name: Kitchen Sensor
      location: Kitchen
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  topic_prefix: home/devices
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "persist", cfg.PageName)
	require.True(t, cfg.HotReload)
	require.Equal(t, 2*time.Second, cfg.ReloadInterval.Duration)
	require.Equal(t, 3*time.Second, cfg.Influx.TimeoutOrDefault())
	require.Len(t, cfg.Catalog.Devices, 1)
	require.Equal(t, "Kitchen Sensor", cfg.Catalog.Devices[0].Name)
	require.Equal(t, "home/devices", cfg.MQTT.TopicPrefix)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"log level":    "logging:\n  level: loud\n",
		"catalog type": "catalog:\n  type: ldap\n",
		"mqtt broker":  "mqtt:\n  enabled: true\n",
		"mongo uri":    "catalog:\n  type: mongo\n",
		"page name":    "page_name: a/b\n",
		"bad duration": "influx:\n  timeout: soon\n",
		"device name":  "catalog:\n  devices:\n    - ref: 1\n",
		"loki url":     "logging:\n  loki:\n    enabled: true\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("INFLUXPERSIST_LISTEN", ":7000")
	t.Setenv("INFLUXPERSIST_LOG_LEVEL", "DEBUG")
	t.Setenv("INFLUXPERSIST_MONGO_URI", "mongodb://db:27017")

	cfg, err := Load(writeConfig(t, "catalog:\n  type: mongo\n"))
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Listen)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "mongodb://db:27017", cfg.Catalog.Mongo.URI)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("INFLUXPERSIST_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("INFLUXPERSIST_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("INFLUXPERSIST_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "loaded", os.Getenv("INFLUXPERSIST_TEST_DOTENV"))
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration{Duration: 1500 * time.Millisecond}
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	require.Equal(t, "1.5s", out)
}
