package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/timzifer/influxpersist/config"
)

// Device describes a home-automation device a record can reference.
type Device struct {
	Ref      int    `bson:"ref" json:"ref"`
	Name     string `bson:"name" json:"name"`
	Location string `bson:"location" json:"location"`
}

// Catalog resolves device references.
type Catalog interface {
	Device(ctx context.Context, ref int) (Device, bool)
	Devices(ctx context.Context) ([]Device, error)
}

// DisplayName returns the device name, or a placeholder naming the ref when
// the device is unknown.
func DisplayName(ctx context.Context, c Catalog, ref int) string {
	if c != nil {
		if dev, ok := c.Device(ctx, ref); ok && dev.Name != "" {
			return dev.Name
		}
	}
	return fmt.Sprintf("Unknown(RefId:%d)", ref)
}

// Static is an in-memory catalog.
type Static struct {
	byRef   map[int]Device
	ordered []Device
}

// NewStatic builds a catalog from a fixed device list. Later duplicates win.
func NewStatic(devices []Device) *Static {
	byRef := make(map[int]Device, len(devices))
	for _, d := range devices {
		byRef[d.Ref] = d
	}
	ordered := make([]Device, 0, len(byRef))
	for _, d := range byRef {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ref < ordered[j].Ref })
	return &Static{byRef: byRef, ordered: ordered}
}

// FromConfig converts configured devices into a static catalog.
func FromConfig(devices []config.DeviceConfig) *Static {
	list := make([]Device, 0, len(devices))
	for _, d := range devices {
		list = append(list, Device{Ref: d.Ref, Name: d.Name, Location: d.Location})
	}
	return NewStatic(list)
}

// Device looks up a device by ref.
func (s *Static) Device(_ context.Context, ref int) (Device, bool) {
	if s == nil {
		return Device{}, false
	}
	d, ok := s.byRef[ref]
	return d, ok
}

// Devices returns all devices ordered by ref.
func (s *Static) Devices(context.Context) ([]Device, error) {
	if s == nil {
		return nil, nil
	}
	return append([]Device(nil), s.ordered...), nil
}
