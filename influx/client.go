package influx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/timzifer/influxpersist/persistence"
)

// DefaultTimeout bounds every backend call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ErrTimeout reports that the backend did not answer in time.
var ErrTimeout = errors.New("timeout")

// Point is a single measurement sample.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// Backend defines the subset of InfluxDB operations the plugin needs.
type Backend interface {
	ListDatabases(ctx context.Context, conn persistence.BackendConnection) ([]string, error)
	WritePoints(ctx context.Context, conn persistence.BackendConnection, points []Point) error
}

// ClientFactory opens an InfluxDB client for a connection.
type ClientFactory func(conn persistence.BackendConnection, timeout time.Duration) (client.Client, error)

// HTTPClientFactory builds clients for the InfluxDB 1.x HTTP API.
func HTTPClientFactory(conn persistence.BackendConnection, timeout time.Duration) (client.Client, error) {
	if conn.Endpoint == "" {
		return nil, fmt.Errorf("influx endpoint is required")
	}
	return client.NewHTTPClient(client.HTTPConfig{
		Addr:     conn.Endpoint,
		Username: conn.Username,
		Password: conn.Password,
		Timeout:  timeout,
	})
}

// HTTPBackend talks to InfluxDB over HTTP.
type HTTPBackend struct {
	timeout   time.Duration
	precision string
	factory   ClientFactory
}

// NewHTTPBackend returns a backend using timeout for each call. Non-positive
// values fall back to DefaultTimeout.
func NewHTTPBackend(timeout time.Duration, precision string) *HTTPBackend {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if precision == "" {
		precision = "ms"
	}
	return &HTTPBackend{timeout: timeout, precision: precision, factory: HTTPClientFactory}
}

// ListDatabases runs SHOW DATABASES against the server.
func (b *HTTPBackend) ListDatabases(ctx context.Context, conn persistence.BackendConnection) ([]string, error) {
	c, err := b.open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	resp, err := c.Query(client.NewQuery("SHOW DATABASES", "", ""))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var names []string
	for _, result := range resp.Results {
		for _, series := range result.Series {
			for _, row := range series.Values {
				if len(row) == 0 {
					continue
				}
				if name, ok := row[0].(string); ok {
					names = append(names, name)
				}
			}
		}
	}
	return names, nil
}

// WritePoints writes all points in one batch to the connection's database.
func (b *HTTPBackend) WritePoints(ctx context.Context, conn persistence.BackendConnection, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	batch, err := client.NewBatchPoints(client.BatchPointsConfig{Database: conn.Database, Precision: b.precision})
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, p := range points {
		ts := p.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		pt, err := client.NewPoint(p.Measurement, p.Tags, p.Fields, ts)
		if err != nil {
			return fmt.Errorf("build point %s: %w", p.Measurement, err)
		}
		batch.AddPoint(pt)
	}

	c, err := b.open(ctx, conn)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Write(batch); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func (b *HTTPBackend) open(ctx context.Context, conn persistence.BackendConnection) (client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	timeout := b.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, ErrTimeout
	}
	c, err := b.factory(conn, timeout)
	if err != nil {
		return nil, fmt.Errorf("create influx client: %w", err)
	}
	return c, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}
