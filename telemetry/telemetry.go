package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the plugin.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. Hooks run inline with form submissions and reading
// forwarding, so they must be inexpensive.
type Collector interface {
	IncHotReload(file string)
	IncFormAction(action, outcome string)
	IncConnectivityCheck(result string)
	IncConfigCommit()
	AddPointsWritten(count int)
	IncPointsFailed(count int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string)          {}
func (noopCollector) IncFormAction(string, string) {}
func (noopCollector) IncConnectivityCheck(string)  {}
func (noopCollector) IncConfigCommit()             {}
func (noopCollector) AddPointsWritten(int)         {}
func (noopCollector) IncPointsFailed(int)          {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	hotReloads  *prometheus.CounterVec
	formActions *prometheus.CounterVec
	checks      *prometheus.CounterVec
	commits     prometheus.Counter
	pointsWrite *prometheus.CounterVec
}

var (
	registryLock sync.Mutex
	registered   = make(map[string]prometheus.Collector)
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registryLock.Lock()
	defer registryLock.Unlock()

	hotReloads, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "influxpersist_state_hot_reload_total",
		Help: "Number of state reloads triggered by external file changes.",
	}, "file")
	if err != nil {
		return nil, err
	}
	formActions, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "influxpersist_form_actions_total",
		Help: "Configuration page submissions per action and outcome.",
	}, "action", "outcome")
	if err != nil {
		return nil, err
	}
	checks, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "influxpersist_connectivity_checks_total",
		Help: "Connection validations per result.",
	}, "result")
	if err != nil {
		return nil, err
	}
	commits, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "influxpersist_config_commits_total",
		Help: "Number of committed configuration changes.",
	})
	if err != nil {
		return nil, err
	}
	points, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "influxpersist_points_total",
		Help: "Points forwarded to InfluxDB per status.",
	}, "status")
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		hotReloads:  hotReloads,
		formActions: formActions,
		checks:      checks,
		commits:     commits,
		pointsWrite: points,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	if existing, ok := registered[opts.Name].(*prometheus.CounterVec); ok {
		return existing, nil
	}
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		counter = existing
	}
	registered[opts.Name] = counter
	return counter, nil
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) (prometheus.Counter, error) {
	if existing, ok := registered[opts.Name].(prometheus.Counter); ok {
		return existing, nil
	}
	counter := prometheus.NewCounter(opts)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, err
		}
		counter = existing
	}
	registered[opts.Name] = counter
	return counter, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// IncFormAction counts a page submission.
func (p *PrometheusCollector) IncFormAction(action, outcome string) {
	if p == nil || p.formActions == nil {
		return
	}
	p.formActions.WithLabelValues(action, outcome).Inc()
}

// IncConnectivityCheck counts a connection validation.
func (p *PrometheusCollector) IncConnectivityCheck(result string) {
	if p == nil || p.checks == nil {
		return
	}
	p.checks.WithLabelValues(result).Inc()
}

// IncConfigCommit counts a committed store mutation.
func (p *PrometheusCollector) IncConfigCommit() {
	if p == nil || p.commits == nil {
		return
	}
	p.commits.Inc()
}

// AddPointsWritten records successfully forwarded points.
func (p *PrometheusCollector) AddPointsWritten(count int) {
	if p == nil || p.pointsWrite == nil || count <= 0 {
		return
	}
	p.pointsWrite.WithLabelValues("written").Add(float64(count))
}

// IncPointsFailed records points the backend rejected.
func (p *PrometheusCollector) IncPointsFailed(count int) {
	if p == nil || p.pointsWrite == nil || count <= 0 {
		return
	}
	p.pointsWrite.WithLabelValues("failed").Add(float64(count))
}
