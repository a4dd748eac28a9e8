package persistence

import (
	"fmt"
	"sort"
	"strings"
)

// PersistenceRecord maps one device to a measurement and field in the backend.
type PersistenceRecord struct {
	ID          string            `yaml:"id" json:"id"`
	DeviceRefID int               `yaml:"deviceRefId" json:"deviceRefId"`
	Measurement string            `yaml:"measurement" json:"measurement"`
	Field       string            `yaml:"field" json:"field"`
	Tags        map[string]string `yaml:"tags" json:"tags"`
}

// Clone returns a copy that shares no tag storage with r.
func (r PersistenceRecord) Clone() PersistenceRecord {
	out := r
	out.Tags = make(map[string]string, len(r.Tags))
	for k, v := range r.Tags {
		out.Tags[k] = v
	}
	return out
}

// Equal compares all fields including tags.
func (r PersistenceRecord) Equal(other PersistenceRecord) bool {
	if r.ID != other.ID || r.DeviceRefID != other.DeviceRefID ||
		r.Measurement != other.Measurement || r.Field != other.Field {
		return false
	}
	if len(r.Tags) != len(other.Tags) {
		return false
	}
	for k, v := range r.Tags {
		if ov, ok := other.Tags[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// TagKeys returns the tag keys in ascending order.
func (r PersistenceRecord) TagKeys() []string {
	keys := make([]string, 0, len(r.Tags))
	for k := range r.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatTags renders tags as key=value lines sorted by key.
func FormatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+tags[k])
	}
	return strings.Join(lines, "\n")
}

// ParseTags decodes key=value lines. Blank lines are skipped. Every bad line
// contributes one message; the map is only meaningful when no messages are returned.
func ParseTags(text string) (map[string]string, []string) {
	tags := make(map[string]string)
	var problems []string
	normalized := strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
	for _, line := range strings.Split(normalized, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		key, value, found := strings.Cut(trimmed, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			problems = append(problems, fmt.Sprintf("Unknown tag format: %s. Expected name=value", trimmed))
			continue
		}
		if _, dup := tags[key]; dup {
			problems = append(problems, fmt.Sprintf("Duplicate tag: %s", key))
			continue
		}
		tags[key] = strings.TrimSpace(value)
	}
	return tags, problems
}
