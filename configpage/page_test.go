package configpage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/influxpersist/catalog"
	"github.com/timzifer/influxpersist/persistence"
)

type failingCatalog struct{}

func (failingCatalog) Device(context.Context, int) (catalog.Device, bool) { return catalog.Device{}, false }

func (failingCatalog) Devices(context.Context) ([]catalog.Device, error) {
	return nil, errors.New("catalog offline")
}

type panickingCatalog struct{}

func (panickingCatalog) Device(context.Context, int) (catalog.Device, bool) { panic("boom") }

func (panickingCatalog) Devices(context.Context) ([]catalog.Device, error) { panic("boom") }

func newTestPage(t *testing.T, devices catalog.Catalog) (*Page, *persistence.Store) {
	t.Helper()
	store := persistence.NewStore(persistence.DefaultState(), nil)
	router := NewRouter(store, &stubValidator{}, "persist", zerolog.Nop(), nil)
	return NewPage("persist", router, NewViewRenderer(store, devices), zerolog.Nop()), store
}

func TestListViewResolvesDeviceNames(t *testing.T) {
	store := persistence.NewStore(persistence.DefaultState(), nil)
	store.UpsertRecord(persistence.PersistenceRecord{ID: "a", DeviceRefID: 12, Measurement: "temp", Field: "value", Tags: map[string]string{"type": "t", "loc": "k"}})
	store.UpsertRecord(persistence.PersistenceRecord{ID: "b", DeviceRefID: 99, Measurement: "power", Field: "watts"})
	renderer := NewViewRenderer(store, catalog.NewStatic([]catalog.Device{{Ref: 12, Name: "Kitchen Sensor"}}))

	view := renderer.List(context.Background(), 1)
	require.Equal(t, TabPersistence, view.Tab)
	require.Equal(t, []RowView{
		{RecordID: "a", DisplayName: "Kitchen Sensor", Measurement: "temp", Field: "value", TagsText: "loc=k\ntype=t"},
		{RecordID: "b", DisplayName: "Unknown(RefId:99)", Measurement: "power", Field: "watts"},
	}, view.Rows)

	require.Equal(t, TabSettings, renderer.List(context.Background(), 7).Tab)
}

func TestEditViewCreateAndEdit(t *testing.T) {
	store := persistence.NewStore(persistence.DefaultState(), nil)
	store.UpsertRecord(persistence.PersistenceRecord{ID: "a", DeviceRefID: 12, Measurement: "temp", Field: "value", Tags: map[string]string{"loc": "k"}})
	renderer := NewViewRenderer(store, catalog.NewStatic([]catalog.Device{{Ref: 3, Name: "Meter"}, {Ref: 12, Name: "Kitchen Sensor"}}))

	create, err := renderer.Edit(context.Background(), "")
	require.NoError(t, err)
	require.False(t, create.Editing)
	require.Equal(t, -1, create.DeviceRefID)
	require.Equal(t, "Add New DB Persistence", create.Header())
	require.Equal(t, "Add", create.SubmitLabel())

	missing, err := renderer.Edit(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, missing.Editing)

	edit, err := renderer.Edit(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, edit.Editing)
	require.Equal(t, "Edit Persistence", edit.Header())
	require.Equal(t, "Save", edit.SubmitLabel())
	require.Equal(t, "loc=k", edit.TagsText)
	require.Equal(t, []DeviceOption{{Ref: 3, Name: "Meter"}, {Ref: 12, Name: "Kitchen Sensor", Selected: true}}, edit.Devices)
}

func TestRenderListAndEdit(t *testing.T) {
	page, store := newTestPage(t, catalog.NewStatic(nil))
	store.UpsertRecord(persistence.PersistenceRecord{ID: "rec-1", DeviceRefID: 5, Measurement: "temp", Field: "value"})

	settings := page.Render(context.Background(), map[string]string{})
	require.Contains(t, settings, `name="DBUriId" value="http://localhost:8086"`)
	require.Contains(t, settings, `id="message_id"`)

	list := page.Render(context.Background(), map[string]string{QueryTab: "1"})
	require.Contains(t, list, "Unknown(RefId:5)")
	require.Contains(t, list, "PersistenceId=rec-1")

	edit := page.Render(context.Background(), map[string]string{QueryType: "edit", QueryPersistenceID: "rec-1"})
	require.Contains(t, edit, "Edit Persistence")
	require.Contains(t, edit, `value="id_DeleteP"`)

	create := page.Render(context.Background(), map[string]string{QueryType: "edit"})
	require.Contains(t, create, "Add New DB Persistence")
	require.NotContains(t, create, `value="id_DeleteP"`)
}

func TestRenderFallsBackOnBadTab(t *testing.T) {
	page, _ := newTestPage(t, nil)
	body := page.Render(context.Background(), map[string]string{QueryTab: "abc"})
	require.Contains(t, body, `id="message_id"`)
}

func TestRenderNeverPanics(t *testing.T) {
	page, store := newTestPage(t, panickingCatalog{})
	store.UpsertRecord(persistence.PersistenceRecord{ID: "a", DeviceRefID: 1, Measurement: "m", Field: "f"})
	require.Equal(t, "error", page.Render(context.Background(), map[string]string{QueryTab: "1"}))

	failing, _ := newTestPage(t, failingCatalog{})
	require.Equal(t, "error", failing.Render(context.Background(), map[string]string{QueryType: "edit"}))
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	page, store := newTestPage(t, nil)
	engine := gin.New()
	page.RegisterRoutes(engine)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/persist?TabId=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "No persistence configured.")

	form := url.Values{}
	form.Set(FieldAction, "id_SaveP")
	form.Set(FieldMeasurement, "temp")
	form.Set(FieldField, "value")
	form.Set(FieldDeviceRefID, "12")
	req := httptest.NewRequest(http.MethodPost, "/persist", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(HeaderUser, "admin")
	req.Header.Set(HeaderRights, "1")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "redirect", resp.Kind)
	require.Equal(t, "/persist?TabId=1", resp.Redirect)
	require.Equal(t, 1, store.Len())
}

func TestEditKeepsDeviceMissingFromCatalog(t *testing.T) {
	page, store := newTestPage(t, catalog.NewStatic([]catalog.Device{{Ref: 12, Name: "Kitchen"}}))
	store.UpsertRecord(persistence.PersistenceRecord{ID: "a", DeviceRefID: 99, Measurement: "temp", Field: "value"})

	edit, err := page.renderer.Edit(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, []DeviceOption{
		{Ref: 12, Name: "Kitchen"},
		{Ref: 99, Name: "Unknown(RefId:99)", Selected: true},
	}, edit.Devices)

	body := page.Render(context.Background(), map[string]string{QueryType: "edit", QueryPersistenceID: "a"})
	require.Contains(t, body, `<option value="99" selected>`)

	create, err := page.renderer.Edit(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []DeviceOption{{Ref: 12, Name: "Kitchen"}}, create.Devices)
}
