package plugin

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/timzifer/influxpersist/config"
	"github.com/timzifer/influxpersist/telemetry"
)

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, prometheus.Gatherer, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil, nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			return nil, nil, err
		}
		return collector, prometheus.DefaultGatherer, nil
	default:
		return telemetry.Noop(), nil, fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}
