package configpage

import (
	"context"

	"github.com/timzifer/influxpersist/catalog"
	"github.com/timzifer/influxpersist/persistence"
)

// RowView is one line of the persistence list.
type RowView struct {
	RecordID    string
	DisplayName string
	Measurement string
	Field       string
	TagsText    string
}

// SettingsView prefills the connection form.
type SettingsView struct {
	Endpoint     string
	Username     string
	Password     string
	Database     string
	DebugLogging bool
}

// ListView is the two-tab overview page.
type ListView struct {
	Tab      int
	Settings SettingsView
	Rows     []RowView
}

// DeviceOption is an entry of the device selector.
type DeviceOption struct {
	Ref      int
	Name     string
	Selected bool
}

// EditView is the add/edit form for one record.
type EditView struct {
	Editing     bool
	RecordID    string
	DeviceRefID int
	Measurement string
	Field       string
	TagsText    string
	Devices     []DeviceOption
}

// Header returns the form title.
func (v EditView) Header() string {
	if v.Editing {
		return "Edit Persistence"
	}
	return "Add New DB Persistence"
}

// SubmitLabel returns the caption of the save button.
func (v EditView) SubmitLabel() string {
	if v.Editing {
		return "Save"
	}
	return "Add"
}

// ViewRenderer projects store state into view models.
type ViewRenderer struct {
	store   *persistence.Store
	devices catalog.Catalog
}

// NewViewRenderer builds a renderer reading from store and resolving names
// through devices.
func NewViewRenderer(store *persistence.Store, devices catalog.Catalog) *ViewRenderer {
	return &ViewRenderer{store: store, devices: devices}
}

// List builds the list view with the given tab selected. Unknown tabs fall
// back to the settings tab.
func (v *ViewRenderer) List(ctx context.Context, tab int) ListView {
	if tab != TabSettings && tab != TabPersistence {
		tab = TabSettings
	}
	conn := v.store.Connection()
	view := ListView{
		Tab: tab,
		Settings: SettingsView{
			Endpoint:     conn.Endpoint,
			Username:     conn.Username,
			Password:     conn.Password,
			Database:     conn.Database,
			DebugLogging: v.store.DebugLogging(),
		},
	}
	for _, rec := range v.store.Records() {
		view.Rows = append(view.Rows, RowView{
			RecordID:    rec.ID,
			DisplayName: catalog.DisplayName(ctx, v.devices, rec.DeviceRefID),
			Measurement: rec.Measurement,
			Field:       rec.Field,
			TagsText:    persistence.FormatTags(rec.Tags),
		})
	}
	return view
}

// Edit builds the form for id. An empty or unknown id yields the create form.
func (v *ViewRenderer) Edit(ctx context.Context, id string) (EditView, error) {
	view := EditView{DeviceRefID: -1}
	if id != "" {
		if rec, ok := v.store.Record(id); ok {
			view.Editing = true
			view.RecordID = rec.ID
			view.DeviceRefID = rec.DeviceRefID
			view.Measurement = rec.Measurement
			view.Field = rec.Field
			view.TagsText = persistence.FormatTags(rec.Tags)
		}
	}
	var devices []catalog.Device
	if v.devices != nil {
		var err error
		if devices, err = v.devices.Devices(ctx); err != nil {
			return EditView{}, err
		}
	}
	listed := false
	for _, d := range devices {
		selected := d.Ref == view.DeviceRefID
		listed = listed || selected
		view.Devices = append(view.Devices, DeviceOption{Ref: d.Ref, Name: d.Name, Selected: selected})
	}
	// Keep the stored reference selectable when the catalog no longer lists it.
	if view.Editing && !listed {
		view.Devices = append(view.Devices, DeviceOption{
			Ref:      view.DeviceRefID,
			Name:     catalog.DisplayName(ctx, v.devices, view.DeviceRefID),
			Selected: true,
		})
	}
	return view, nil
}
