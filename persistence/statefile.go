package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

// ErrInvalidState is returned when a state file fails validation.
var ErrInvalidState = errors.New("invalid persistence state")

const stateSchema = `
#Record: {
	id:          string & !=""
	deviceRefId: int
	measurement: string & !=""
	field:       string & !=""
	tags?: {[string]: string}
}

#State: {
	endpoint:      string & !=""
	username?:     string
	password?:     string
	database:      string & !=""
	debugLogging?: bool
	records?: [...#Record]
}
`

type stateDocument struct {
	Endpoint     string              `yaml:"endpoint"`
	Username     string              `yaml:"username"`
	Password     string              `yaml:"password"`
	Database     string              `yaml:"database"`
	DebugLogging bool                `yaml:"debugLogging"`
	Records      []PersistenceRecord `yaml:"records"`
}

// LoadFile reads the state file at path. A missing or empty file yields DefaultState.
func LoadFile(path string) (State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultState(), nil
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return DefaultState(), nil
	}
	if err := validateSchema(path, raw); err != nil {
		return State{}, err
	}
	var doc stateDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	state := State{
		Connection: BackendConnection{
			Endpoint: doc.Endpoint,
			Username: doc.Username,
			Password: doc.Password,
			Database: doc.Database,
		},
		DebugLogging: doc.DebugLogging,
		Records:      make([]PersistenceRecord, 0, len(doc.Records)),
	}
	if !state.Connection.EndpointValid() {
		return State{}, fmt.Errorf("%w: endpoint %q is not an absolute uri", ErrInvalidState, doc.Endpoint)
	}
	seen := make(map[string]struct{}, len(doc.Records))
	for _, rec := range doc.Records {
		if _, dup := seen[rec.ID]; dup {
			return State{}, fmt.Errorf("%w: duplicate record id %q", ErrInvalidState, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		state.Records = append(state.Records, rec.Clone())
	}
	return state, nil
}

// SaveFile writes the state atomically with owner-only permissions.
func SaveFile(path string, state State) error {
	doc := stateDocument{
		Endpoint:     state.Connection.Endpoint,
		Username:     state.Connection.Username,
		Password:     state.Connection.Password,
		Database:     state.Connection.Database,
		DebugLogging: state.DebugLogging,
		Records:      make([]PersistenceRecord, 0, len(state.Records)),
	}
	for _, rec := range state.Records {
		doc.Records = append(doc.Records, rec.Clone())
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func validateSchema(path string, raw []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(stateSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile state schema: %w", err)
	}
	file, err := cueyaml.Extract(path, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	unified := schema.LookupPath(cue.ParsePath("#State")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}
