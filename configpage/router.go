package configpage

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/timzifer/influxpersist/connectivity"
	"github.com/timzifer/influxpersist/persistence"
	"github.com/timzifer/influxpersist/telemetry"
)

// ResultKind tells the host how to apply a submission result.
type ResultKind int

const (
	// KindRender asks the host to render the page without changes.
	KindRender ResultKind = iota
	// KindSuccess clears the bound error region.
	KindSuccess
	// KindError shows messages in the bound error region.
	KindError
	// KindRedirect navigates to Result.Redirect.
	KindRedirect
)

func (k ResultKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	case KindRedirect:
		return "redirect"
	default:
		return "render"
	}
}

// Result is the outcome of a form submission.
type Result struct {
	Kind     ResultKind
	Action   Action
	Updates  map[string]string
	Redirect string
	Errors   []string
}

// ConnectionValidator checks a backend connection before it is committed.
type ConnectionValidator interface {
	Validate(ctx context.Context, conn persistence.BackendConnection) connectivity.Result
}

// Router validates form submissions and applies them to the store.
type Router struct {
	store     *persistence.Store
	validator ConnectionValidator
	pageName  string
	logger    zerolog.Logger
	telemetry telemetry.Collector
	newID     func() string
}

// NewRouter builds a router for the page served under pageName.
func NewRouter(store *persistence.Store, validator ConnectionValidator, pageName string, logger zerolog.Logger, collector telemetry.Collector) *Router {
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &Router{
		store:     store,
		validator: validator,
		pageName:  pageName,
		logger:    logger.With().Str("component", "configpage").Logger(),
		telemetry: collector,
		newID:     uuid.NewString,
	}
}

// ListURL is the redirect target after record changes.
func (r *Router) ListURL() string {
	return fmt.Sprintf("/%s?%s=%d", url.PathEscape(r.pageName), QueryTab, TabPersistence)
}

// HandleSubmit dispatches a posted form. It never panics; unexpected faults
// are reported on the action's error region.
func (r *Router) HandleSubmit(ctx context.Context, form map[string]string, user string, rights int) (res Result) {
	action := ParseAction(form[FieldAction])
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("action", action.String()).Msg("form submission failed")
			res = errorResult(action, []string{"error"})
		}
		r.telemetry.IncFormAction(action.String(), res.Kind.String())
	}()

	r.logger.Debug().Str("action", action.String()).Str("user", user).Int("rights", rights).Msg("form submitted")

	switch action {
	case SaveSettings:
		return r.saveSettings(ctx, form)
	case CancelEdit:
		return r.redirect(action)
	case SaveRecord:
		return r.saveRecord(form)
	case DeleteRecord:
		return r.deleteRecord(form)
	default:
		return Result{Kind: KindRender, Action: NoAction}
	}
}

func (r *Router) saveSettings(ctx context.Context, form map[string]string) Result {
	conn := persistence.BackendConnection{
		Endpoint: strings.TrimSpace(form[FieldEndpoint]),
		Username: form[FieldUsername],
		Password: form[FieldPassword],
		Database: strings.TrimSpace(form[FieldDatabase]),
	}
	debug := parseFlag(form[FieldDebugLogging])

	var messages []string
	if failures := connectivity.CheckStructure(conn); len(failures) > 0 {
		for _, f := range failures {
			messages = append(messages, f.Message())
		}
	} else if r.validator != nil {
		if result := r.validator.Validate(ctx, conn); !result.OK() {
			messages = append(messages, result.Messages()...)
		}
	}
	if len(messages) > 0 {
		r.logger.Info().Strs("errors", messages).Msg("settings rejected")
		return errorResult(SaveSettings, messages)
	}

	r.store.SetConnection(conn, debug)
	r.logger.Info().Str("endpoint", conn.Endpoint).Str("database", conn.Database).Bool("debug", debug).Msg("settings saved")
	return Result{Kind: KindSuccess, Action: SaveSettings, Updates: map[string]string{RegionSettingsError: ""}}
}

func (r *Router) saveRecord(form map[string]string) Result {
	var messages []string

	measurement := strings.TrimSpace(form[FieldMeasurement])
	if measurement == "" {
		messages = append(messages, "Measurement is not Valid.")
	}
	field := strings.TrimSpace(form[FieldField])
	if field == "" {
		messages = append(messages, "Field is not Valid.")
	}
	deviceRef, err := strconv.Atoi(strings.TrimSpace(form[FieldDeviceRefID]))
	if err != nil || deviceRef < 0 {
		messages = append(messages, "Device is not Valid.")
	}
	tags, problems := persistence.ParseTags(form[FieldTags])
	messages = append(messages, problems...)

	if len(messages) > 0 {
		r.logger.Info().Strs("errors", messages).Msg("persistence record rejected")
		return errorResult(SaveRecord, messages)
	}

	id := strings.TrimSpace(form[FieldPersistenceID])
	if id == "" {
		id = r.newID()
	}
	r.store.UpsertRecord(persistence.PersistenceRecord{
		ID:          id,
		DeviceRefID: deviceRef,
		Measurement: measurement,
		Field:       field,
		Tags:        tags,
	})
	r.logger.Info().Str("id", id).Int("device", deviceRef).Str("measurement", measurement).Msg("persistence record saved")
	return r.redirect(SaveRecord)
}

func (r *Router) deleteRecord(form map[string]string) Result {
	id := strings.TrimSpace(form[FieldPersistenceID])
	if id != "" && r.store.RemoveRecord(id) {
		r.logger.Info().Str("id", id).Msg("persistence record deleted")
	}
	return r.redirect(DeleteRecord)
}

func (r *Router) redirect(action Action) Result {
	target := r.ListURL()
	return Result{
		Kind:     KindRedirect,
		Action:   action,
		Redirect: target,
		Updates:  map[string]string{RegionRecordError: ""},
	}
}

func errorResult(action Action, messages []string) Result {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(html.EscapeString(msg))
		b.WriteString("<br>")
	}
	return Result{
		Kind:    KindError,
		Action:  action,
		Errors:  messages,
		Updates: map[string]string{action.region(): b.String()},
	}
}

func parseFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "checked", "on", "true":
		return true
	default:
		return false
	}
}
