package plugin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/timzifer/influxpersist/catalog"
	"github.com/timzifer/influxpersist/config"
	"github.com/timzifer/influxpersist/configpage"
	"github.com/timzifer/influxpersist/connectivity"
	"github.com/timzifer/influxpersist/forwarder"
	"github.com/timzifer/influxpersist/influx"
	"github.com/timzifer/influxpersist/internal/logging"
	"github.com/timzifer/influxpersist/internal/reload"
	"github.com/timzifer/influxpersist/persistence"
	"github.com/timzifer/influxpersist/telemetry"
)

// Plugin owns the configuration store and everything that reads or writes it.
type Plugin struct {
	mu sync.Mutex

	config    *config.Config
	logger    zerolog.Logger
	collector telemetry.Collector
	gatherer  prometheus.Gatherer

	store      *persistence.Store
	page       *configpage.Page
	forwarder  *forwarder.Forwarder
	subscriber *forwarder.Subscriber
	watcher    *reload.Watcher
	engine     *gin.Engine

	mongo   *mongo.Client
	running bool
}

// New loads the persisted state and wires the plugin components.
func New(ctx context.Context, opts ...Option) (*Plugin, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		if cfg.configPath == "" {
			return nil, errors.New("configuration path required")
		}
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg.config = loaded
	}

	if !cfg.telemetryProvided {
		collector, gatherer, err := newTelemetryCollector(cfg.config.Telemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.gatherer = gatherer
	}

	state, err := persistence.LoadFile(cfg.config.StateFile)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	p := &Plugin{
		config:    cfg.config,
		logger:    cfg.logger,
		collector: cfg.telemetry,
		gatherer:  cfg.gatherer,
	}

	devices := cfg.catalog
	if devices == nil {
		devices, err = p.buildCatalog(ctx)
		if err != nil {
			return nil, err
		}
	}
	backend := cfg.backend
	if backend == nil {
		backend = influx.NewHTTPBackend(cfg.config.Influx.TimeoutOrDefault(), cfg.config.Influx.Precision)
	}

	p.store = persistence.NewStore(state, p.commit)
	if cfg.config.HotReload {
		p.watcher = reload.NewWatcher(cfg.config.StateFile)
	}
	logging.ApplyDebug(state.DebugLogging)

	validator := connectivity.NewValidator(backend, p.logger, p.collector)
	router := configpage.NewRouter(p.store, validator, cfg.config.PageName, p.logger, p.collector)
	p.page = configpage.NewPage(cfg.config.PageName, router, configpage.NewViewRenderer(p.store, devices), p.logger)
	p.forwarder = forwarder.New(p.store, devices, backend, p.logger, p.collector)
	if cfg.config.MQTT.Enabled {
		p.subscriber = forwarder.NewSubscriber(cfg.config.MQTT, p.forwarder, p.logger)
	}
	p.engine = p.buildEngine()

	p.logger.Info().
		Str("state_file", cfg.config.StateFile).
		Int("records", p.store.Len()).
		Str("endpoint", state.Connection.Endpoint).
		Msg("plugin initialised")
	return p, nil
}

func (p *Plugin) buildCatalog(ctx context.Context) (catalog.Catalog, error) {
	switch strings.ToLower(p.config.Catalog.Type) {
	case "mongo":
		client, err := catalog.Connect(ctx, p.config.Catalog.Mongo)
		if err != nil {
			return nil, err
		}
		p.mongo = client
		coll := client.Database(p.config.Catalog.Mongo.Database).Collection(p.config.Catalog.Mongo.Collection)
		return catalog.NewMongo(coll, p.config.Catalog.Mongo.Timeout.Duration, p.logger), nil
	default:
		return catalog.FromConfig(p.config.Catalog.Devices), nil
	}
}

func (p *Plugin) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	p.page.RegisterRoutes(engine)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "records": p.store.Len()})
	})
	if p.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})))
	}
	return engine
}

// Store exposes the configuration store.
func (p *Plugin) Store() *persistence.Store {
	return p.store
}

// Page exposes the configuration page.
func (p *Plugin) Page() *configpage.Page {
	return p.page
}

// Forwarder exposes the reading forwarder for hosts that push readings directly.
func (p *Plugin) Forwarder() *forwarder.Forwarder {
	return p.forwarder
}

// Handler returns the HTTP handler serving the page, health and metrics.
func (p *Plugin) Handler() http.Handler {
	return p.engine
}

// commit persists the store after every successful mutation. The store runs
// it under its commit lock, so saves land on disk in commit order.
func (p *Plugin) commit() {
	state := p.store.Snapshot()
	if err := persistence.SaveFile(p.config.StateFile, state); err != nil {
		p.logger.Error().Err(err).Str("state_file", p.config.StateFile).Msg("failed to save state")
	} else {
		p.watcher.Update()
	}
	logging.ApplyDebug(state.DebugLogging)
	p.collector.IncConfigCommit()
}

// CheckReload reloads the state file when it was changed by someone else.
// It returns true when a reload happened. The check runs under the store's
// commit lock so a save in progress is never mistaken for an external edit.
func (p *Plugin) CheckReload() (bool, error) {
	var changed []string
	var records int
	reloaded, err := p.store.Reload(func() (persistence.State, bool, error) {
		changed = p.watcher.Check()
		if len(changed) == 0 {
			return persistence.State{}, false, nil
		}
		state, err := persistence.LoadFile(p.config.StateFile)
		if err != nil {
			return persistence.State{}, false, err
		}
		p.watcher.Update()
		records = len(state.Records)
		logging.ApplyDebug(state.DebugLogging)
		return state, true, nil
	})
	if err != nil || !reloaded {
		return false, err
	}
	for _, file := range changed {
		p.collector.IncHotReload(file)
	}
	p.logger.Info().Strs("files", changed).Int("records", records).Msg("state reloaded")
	return true, nil
}

// Run serves HTTP on the configured address and processes readings until ctx is cancelled.
func (p *Plugin) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("plugin already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ln, err := net.Listen("tcp", p.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", p.config.Listen, err)
	}
	srv := &http.Server{Handler: p.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	p.logger.Info().Str("listen", ln.Addr().String()).Str("page", p.config.PageName).Msg("configuration page started")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != context.Canceled {
			p.logger.Error().Err(err).Msg("shutdown configuration page")
		}
	}()

	if p.subscriber != nil {
		if err := p.subscriber.Start(ctx); err != nil {
			return err
		}
		defer p.subscriber.Stop()
	}

	var tick <-chan time.Time
	if p.watcher != nil {
		interval := p.config.ReloadInterval.Duration
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-tick:
			if _, err := p.CheckReload(); err != nil {
				p.logger.Error().Err(err).Msg("failed to reload state")
			}
		}
	}
}

// Close releases external connections.
func (p *Plugin) Close() {
	if p.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.mongo.Disconnect(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("disconnect mongo")
		}
	}
}
