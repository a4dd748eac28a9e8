package catalog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/timzifer/influxpersist/config"
)

func TestStaticCatalog(t *testing.T) {
	cat := FromConfig([]config.DeviceConfig{
		{Ref: 12, Name: "Kitchen Sensor", Location: "Kitchen"},
		{Ref: 3, Name: "Meter", Location: "Basement"},
	})

	dev, ok := cat.Device(context.Background(), 12)
	require.True(t, ok)
	require.Equal(t, "Kitchen", dev.Location)

	devices, err := cat.Devices(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{3, 12}, []int{devices[0].Ref, devices[1].Ref})
}

func TestDisplayName(t *testing.T) {
	cat := NewStatic([]Device{{Ref: 1, Name: "Lamp"}})
	require.Equal(t, "Lamp", DisplayName(context.Background(), cat, 1))
	require.Equal(t, "Unknown(RefId:42)", DisplayName(context.Background(), cat, 42))
	require.Equal(t, "Unknown(RefId:-1)", DisplayName(context.Background(), nil, -1))
}

func TestMongoCatalog(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("device found", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "ref", Value: 12},
			{Key: "name", Value: "Kitchen Sensor"},
			{Key: "location", Value: "Kitchen"},
		}))
		cat := NewMongo(mt.Coll, 0, zerolog.Nop())
		dev, ok := cat.Device(context.Background(), 12)
		require.True(mt, ok)
		require.Equal(mt, Device{Ref: 12, Name: "Kitchen Sensor", Location: "Kitchen"}, dev)
	})

	mt.Run("device missing", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		cat := NewMongo(mt.Coll, 0, zerolog.Nop())
		_, ok := cat.Device(context.Background(), 99)
		require.False(mt, ok)
	})

	mt.Run("list devices", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
			bson.D{{Key: "ref", Value: 1}, {Key: "name", Value: "Lamp"}, {Key: "location", Value: "Hall"}})
		getMore := mtest.CreateCursorResponse(0, ns, mtest.NextBatch,
			bson.D{{Key: "ref", Value: 2}, {Key: "name", Value: "Heater"}, {Key: "location", Value: "Bath"}})
		mt.AddMockResponses(first, getMore)

		cat := NewMongo(mt.Coll, 0, zerolog.Nop())
		devices, err := cat.Devices(context.Background())
		require.NoError(mt, err)
		require.Len(mt, devices, 2)
		require.Equal(mt, "Heater", devices[1].Name)
	})

	mt.Run("list error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value"}))
		cat := NewMongo(mt.Coll, 0, zerolog.Nop())
		_, err := cat.Devices(context.Background())
		require.Error(mt, err)
	})
}
