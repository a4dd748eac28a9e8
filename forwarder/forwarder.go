package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/timzifer/influxpersist/catalog"
	"github.com/timzifer/influxpersist/influx"
	"github.com/timzifer/influxpersist/persistence"
	"github.com/timzifer/influxpersist/telemetry"
)

// Tag keys added from the device catalog.
const (
	TagName     = "name"
	TagLocation = "location"
)

// Reading is a device value change reported by the host.
type Reading struct {
	DeviceRefID int
	Value       string
	Time        time.Time
}

// Writer sends points to the backend.
type Writer interface {
	WritePoints(ctx context.Context, conn persistence.BackendConnection, points []influx.Point) error
}

// Forwarder turns readings into points for every matching persistence record.
type Forwarder struct {
	store     *persistence.Store
	devices   catalog.Catalog
	writer    Writer
	logger    zerolog.Logger
	telemetry telemetry.Collector
}

// New builds a forwarder. devices may be nil, in which case no name or
// location tags are added.
func New(store *persistence.Store, devices catalog.Catalog, writer Writer, logger zerolog.Logger, collector telemetry.Collector) *Forwarder {
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &Forwarder{
		store:     store,
		devices:   devices,
		writer:    writer,
		logger:    logger.With().Str("component", "forwarder").Logger(),
		telemetry: collector,
	}
}

// ParseValue accepts a plain decimal number, true/false, or a JSON object
// with a "value" member holding either.
func ParseValue(raw string) (decimal.Decimal, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "{") {
		var payload struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return decimal.Decimal{}, fmt.Errorf("decode payload: %w", err)
		}
		if len(payload.Value) == 0 {
			return decimal.Decimal{}, fmt.Errorf("payload has no value")
		}
		text = strings.Trim(strings.TrimSpace(string(payload.Value)), `"`)
	}
	switch strings.ToLower(text) {
	case "true", "on":
		return decimal.NewFromInt(1), nil
	case "false", "off":
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse value %q: %w", text, err)
	}
	return value, nil
}

// Points builds one point per record mapped to the reading's device.
func (f *Forwarder) Points(ctx context.Context, reading Reading) ([]influx.Point, error) {
	var matches []persistence.PersistenceRecord
	for _, rec := range f.store.Records() {
		if rec.DeviceRefID == reading.DeviceRefID {
			matches = append(matches, rec)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	value, err := ParseValue(reading.Value)
	if err != nil {
		return nil, err
	}
	ts := reading.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var device catalog.Device
	var known bool
	if f.devices != nil {
		device, known = f.devices.Device(ctx, reading.DeviceRefID)
	}

	points := make([]influx.Point, 0, len(matches))
	for _, rec := range matches {
		tags := make(map[string]string, len(rec.Tags)+2)
		if known {
			if device.Name != "" {
				tags[TagName] = device.Name
			}
			if device.Location != "" {
				tags[TagLocation] = device.Location
			}
		}
		for k, v := range rec.Tags {
			tags[k] = v
		}
		points = append(points, influx.Point{
			Measurement: rec.Measurement,
			Tags:        tags,
			Fields:      map[string]interface{}{rec.Field: value.InexactFloat64()},
			Time:        ts,
		})
	}
	return points, nil
}

// Forward writes the points for reading and returns how many were sent.
func (f *Forwarder) Forward(ctx context.Context, reading Reading) (int, error) {
	points, err := f.Points(ctx, reading)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		f.logger.Trace().Int("device", reading.DeviceRefID).Msg("no persistence for device")
		return 0, nil
	}
	if err := f.writer.WritePoints(ctx, f.store.Connection(), points); err != nil {
		f.telemetry.IncPointsFailed(len(points))
		return 0, fmt.Errorf("write points for device %d: %w", reading.DeviceRefID, err)
	}
	f.telemetry.AddPointsWritten(len(points))
	f.logger.Debug().Int("device", reading.DeviceRefID).Int("points", len(points)).Msg("reading forwarded")
	return len(points), nil
}
