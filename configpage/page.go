package configpage

import (
	"bytes"
	"context"
	"html/template"
	"strconv"

	"github.com/rs/zerolog"
)

// Page serves the configuration page: rendering and form submissions.
type Page struct {
	name     string
	router   *Router
	renderer *ViewRenderer
	logger   zerolog.Logger
}

// NewPage combines a router and a renderer under the given page name.
func NewPage(name string, router *Router, renderer *ViewRenderer, logger zerolog.Logger) *Page {
	return &Page{
		name:     name,
		router:   router,
		renderer: renderer,
		logger:   logger.With().Str("component", "configpage").Logger(),
	}
}

// Name returns the page name used in URLs.
func (p *Page) Name() string {
	return p.name
}

// HandleSubmit forwards to the router.
func (p *Page) HandleSubmit(ctx context.Context, form map[string]string, user string, rights int) Result {
	return p.router.HandleSubmit(ctx, form, user, rights)
}

type listPageData struct {
	Page     string
	View     ListView
	Actions  actionIDsData
	Fields   fieldNames
	Settings string
	Record   string
}

type editPageData struct {
	Page    string
	View    EditView
	Actions actionIDsData
	Fields  fieldNames
	Record  string
}

type actionIDsData struct {
	SaveSettings string
	Cancel       string
	Save         string
	Delete       string
}

type fieldNames struct {
	Action, Endpoint, Username, Password, Database, Debug string
	Measurement, Field, Device, Tags, ID                  string
}

var (
	pageActions = actionIDsData{
		SaveSettings: SaveSettings.FormID(),
		Cancel:       CancelEdit.FormID(),
		Save:         SaveRecord.FormID(),
		Delete:       DeleteRecord.FormID(),
	}
	pageFields = fieldNames{
		Action: FieldAction, Endpoint: FieldEndpoint, Username: FieldUsername, Password: FieldPassword,
		Database: FieldDatabase, Debug: FieldDebugLogging, Measurement: FieldMeasurement, Field: FieldField,
		Device: FieldDeviceRefID, Tags: FieldTags, ID: FieldPersistenceID,
	}
)

// Render produces the page body for query. It never panics; any failure
// yields the literal body "error".
func (p *Page) Render(ctx context.Context, query map[string]string) (body string) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error().Interface("panic", rec).Msg("render page")
			body = "error"
		}
	}()

	var buf bytes.Buffer
	if query[QueryType] == pageTypeEdit {
		view, err := p.renderer.Edit(ctx, query[QueryPersistenceID])
		if err != nil {
			p.logger.Error().Err(err).Msg("build edit view")
			return "error"
		}
		data := editPageData{Page: p.name, View: view, Actions: pageActions, Fields: pageFields, Record: RegionRecordError}
		if err := editTemplate.Execute(&buf, data); err != nil {
			p.logger.Error().Err(err).Msg("render edit view")
			return "error"
		}
		return buf.String()
	}

	tab, err := strconv.Atoi(query[QueryTab])
	if err != nil {
		tab = TabSettings
	}
	data := listPageData{
		Page:     p.name,
		View:     p.renderer.List(ctx, tab),
		Actions:  pageActions,
		Fields:   pageFields,
		Settings: RegionSettingsError,
		Record:   RegionRecordError,
	}
	if err := listTemplate.Execute(&buf, data); err != nil {
		p.logger.Error().Err(err).Msg("render list view")
		return "error"
	}
	return buf.String()
}

const submitScript = `<script>
document.querySelectorAll("form[data-ajax]").forEach(function (form) {
  form.addEventListener("submit", function (ev) {
    ev.preventDefault();
    var body = new URLSearchParams(new FormData(form));
    if (ev.submitter && ev.submitter.name) { body.set(ev.submitter.name, ev.submitter.value); }
    fetch(form.action, { method: "POST", body: body })
      .then(function (resp) { return resp.json(); })
      .then(function (res) {
        Object.keys(res.updates || {}).forEach(function (id) {
          var el = document.getElementById(id);
          if (el) { el.innerHTML = res.updates[id]; }
        });
        if (res.kind === "redirect" && res.redirect) { window.location.href = res.redirect; }
      });
  });
});
</script>`

var listTemplate = template.Must(template.New("list").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>InfluxDB Persistence</title>
<style>
body { font-family: Arial, sans-serif; margin: 2rem; color: #222; }
.tabs a { margin-right: 1rem; }
.tabs a.active { font-weight: bold; }
.error { color: #b00020; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.3rem 0.6rem; vertical-align: top; }
td.tags { white-space: pre-line; }
</style>
</head>
<body>
<h1>InfluxDB Persistence</h1>
<nav class="tabs">
<a href="/{{.Page}}?TabId=0"{{if eq .View.Tab 0}} class="active"{{end}}>DB Settings</a>
<a href="/{{.Page}}?TabId=1"{{if eq .View.Tab 1}} class="active"{{end}}>Persistence</a>
</nav>
{{if eq .View.Tab 0}}
<section id="settings">
<form method="post" action="/{{.Page}}" data-ajax>
<p><label>Url <input type="text" name="{{.Fields.Endpoint}}" value="{{.View.Settings.Endpoint}}"></label></p>
<p><label>User <input type="text" name="{{.Fields.Username}}" value="{{.View.Settings.Username}}"></label></p>
<p><label>Password <input type="password" name="{{.Fields.Password}}" value="{{.View.Settings.Password}}"></label></p>
<p><label>Database <input type="text" name="{{.Fields.Database}}" value="{{.View.Settings.Database}}"></label></p>
<p><label><input type="checkbox" name="{{.Fields.Debug}}" value="checked"{{if .View.Settings.DebugLogging}} checked{{end}}> Debug logging</label></p>
<button type="submit" name="{{.Fields.Action}}" value="{{.Actions.SaveSettings}}">Save</button>
</form>
<div id="{{.Settings}}" class="error"></div>
</section>
{{else}}
<section id="persistence">
<p>Name and locations are automatically added as tags.</p>
<table>
<tr><th>Device</th><th>Measurement</th><th>Field</th><th>Tags</th><th></th></tr>
{{range .View.Rows}}
<tr>
<td>{{.DisplayName}}</td>
<td>{{.Measurement}}</td>
<td>{{.Field}}</td>
<td class="tags">{{.TagsText}}</td>
<td><a href="/{{$.Page}}?type=edit&PersistenceId={{.RecordID}}">Edit</a></td>
</tr>
{{else}}
<tr><td colspan="5">No persistence configured.</td></tr>
{{end}}
</table>
<p><a href="/{{.Page}}?type=edit">Add New</a></p>
<div id="{{.Record}}" class="error"></div>
</section>
{{end}}
` + submitScript + `
</body>
</html>
`))

var editTemplate = template.Must(template.New("edit").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.View.Header}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 2rem; color: #222; }
.error { color: #b00020; }
</style>
</head>
<body>
<h1>{{.View.Header}}</h1>
<form method="post" action="/{{.Page}}" data-ajax>
<input type="hidden" name="{{.Fields.ID}}" value="{{.View.RecordID}}">
<p><label>Device <select name="{{.Fields.Device}}">
<option value="-1"{{if eq .View.DeviceRefID -1}} selected{{end}}>Select device</option>
{{range .View.Devices}}<option value="{{.Ref}}"{{if .Selected}} selected{{end}}>{{.Name}}</option>
{{end}}</select></label></p>
<p><label>Measurement <input type="text" name="{{.Fields.Measurement}}" value="{{.View.Measurement}}"></label></p>
<p><label>Field <input type="text" name="{{.Fields.Field}}" value="{{.View.Field}}"></label></p>
<p><label>Tags <textarea name="{{.Fields.Tags}}" rows="5" cols="40">{{.View.TagsText}}</textarea></label></p>
<p>Name and locations are automatically added as tags.</p>
<button type="submit" name="{{.Fields.Action}}" value="{{.Actions.Save}}">{{.View.SubmitLabel}}</button>
<button type="submit" name="{{.Fields.Action}}" value="{{.Actions.Cancel}}">Cancel</button>
{{if .View.Editing}}<button type="submit" name="{{.Fields.Action}}" value="{{.Actions.Delete}}">Delete</button>{{end}}
</form>
<div id="{{.Record}}" class="error"></div>
` + submitScript + `
</body>
</html>
`))
