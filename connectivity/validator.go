package connectivity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/timzifer/influxpersist/influx"
	"github.com/timzifer/influxpersist/persistence"
	"github.com/timzifer/influxpersist/telemetry"
)

// FailureReason classifies why a connection was rejected.
type FailureReason int

const (
	// MalformedURL means the endpoint is not an absolute URI.
	MalformedURL FailureReason = iota + 1
	// EmptyDatabase means no database name was given.
	EmptyDatabase
	// ConnectionFailed means the server could not be queried.
	ConnectionFailed
	// DatabaseNotFound means the server does not know the database.
	DatabaseNotFound
)

func (r FailureReason) String() string {
	switch r {
	case MalformedURL:
		return "malformed_url"
	case EmptyDatabase:
		return "empty_database"
	case ConnectionFailed:
		return "connection_failed"
	case DatabaseNotFound:
		return "database_not_found"
	default:
		return "unknown"
	}
}

// Failure is a single validation problem.
type Failure struct {
	Reason FailureReason
	Detail string
}

// Message renders the operator-facing text for the failure.
func (f Failure) Message() string {
	switch f.Reason {
	case MalformedURL:
		return "Url is not Valid."
	case EmptyDatabase:
		return "Database is not Valid."
	case DatabaseNotFound:
		return "Database not found on server."
	case ConnectionFailed:
		return fmt.Sprintf("Failed to connect to InfluxDB with %s", f.Detail)
	default:
		return "Unknown failure."
	}
}

// Result is the outcome of a validation run.
type Result struct {
	Failures []Failure
}

// OK reports whether no failure was found.
func (r Result) OK() bool {
	return len(r.Failures) == 0
}

// Messages returns the failure texts in detection order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Message())
	}
	return out
}

// CheckStructure runs the checks that need no network access.
func CheckStructure(conn persistence.BackendConnection) []Failure {
	var failures []Failure
	if !conn.EndpointValid() {
		failures = append(failures, Failure{Reason: MalformedURL})
	}
	if !conn.DatabaseValid() {
		failures = append(failures, Failure{Reason: EmptyDatabase})
	}
	return failures
}

// Validator checks a candidate connection before it is committed.
type Validator struct {
	backend   influx.Backend
	logger    zerolog.Logger
	telemetry telemetry.Collector
}

// NewValidator builds a validator backed by backend.
func NewValidator(backend influx.Backend, logger zerolog.Logger, collector telemetry.Collector) *Validator {
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &Validator{
		backend:   backend,
		logger:    logger.With().Str("component", "connectivity").Logger(),
		telemetry: collector,
	}
}

// Validate runs the structural checks and, only if they pass, asks the server
// for its database list.
func (v *Validator) Validate(ctx context.Context, conn persistence.BackendConnection) Result {
	if failures := CheckStructure(conn); len(failures) > 0 {
		v.record(failures)
		return Result{Failures: failures}
	}

	names, err := v.backend.ListDatabases(ctx, conn)
	if err != nil {
		detail := err.Error()
		if errors.Is(err, influx.ErrTimeout) {
			detail = "timeout"
		}
		v.logger.Debug().Err(err).Str("endpoint", conn.Endpoint).Msg("connection check failed")
		failures := []Failure{{Reason: ConnectionFailed, Detail: detail}}
		v.record(failures)
		return Result{Failures: failures}
	}
	for _, name := range names {
		if name == conn.Database {
			v.record(nil)
			return Result{}
		}
	}
	v.logger.Debug().Str("database", conn.Database).Strs("available", names).Msg("database missing on server")
	failures := []Failure{{Reason: DatabaseNotFound}}
	v.record(failures)
	return Result{Failures: failures}
}

func (v *Validator) record(failures []Failure) {
	if len(failures) == 0 {
		v.telemetry.IncConnectivityCheck("ok")
		return
	}
	v.telemetry.IncConnectivityCheck(failures[0].Reason.String())
}
