package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/timzifer/influxpersist/config"
)

// Mongo reads devices from a MongoDB collection with documents shaped
// {ref, name, location}.
type Mongo struct {
	coll    *mongo.Collection
	timeout time.Duration
	logger  zerolog.Logger
}

// NewMongo wraps a device collection. Each query is bounded by timeout.
func NewMongo(coll *mongo.Collection, timeout time.Duration, logger zerolog.Logger) *Mongo {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Mongo{coll: coll, timeout: timeout, logger: logger.With().Str("component", "catalog").Logger()}
}

// Connect opens a client for the configured deployment and verifies it with a ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Device looks up a single device. Lookup errors are logged and reported as unknown.
func (m *Mongo) Device(ctx context.Context, ref int) (Device, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	var dev Device
	err := m.coll.FindOne(ctx, bson.M{"ref": ref}).Decode(&dev)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			m.logger.Warn().Err(err).Int("ref", ref).Msg("device lookup failed")
		}
		return Device{}, false
	}
	return dev, true
}

// Devices returns every device ordered by ref.
func (m *Mongo) Devices(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	cursor, err := m.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "ref", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find devices: %w", err)
	}
	var devices []Device
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return devices, nil
}
