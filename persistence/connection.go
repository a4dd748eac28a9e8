package persistence

import (
	"net/url"
	"strings"
)

const (
	// DefaultEndpoint is used until an operator saves different settings.
	DefaultEndpoint = "http://localhost:8086"
	// DefaultDatabase is the database name used on first start.
	DefaultDatabase = "home"
)

// BackendConnection describes how to reach the InfluxDB server.
type BackendConnection struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
}

// DefaultConnection returns the connection used when nothing was persisted yet.
func DefaultConnection() BackendConnection {
	return BackendConnection{Endpoint: DefaultEndpoint, Database: DefaultDatabase}
}

// ParseEndpoint parses text as an absolute URI with a host.
func ParseEndpoint(text string) (*url.URL, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	u, err := url.Parse(text)
	if err != nil {
		return nil, false
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	return u, true
}

// EndpointValid reports whether the endpoint is an absolute URI.
func (c BackendConnection) EndpointValid() bool {
	_, ok := ParseEndpoint(c.Endpoint)
	return ok
}

// DatabaseValid reports whether a database name is set.
func (c BackendConnection) DatabaseValid() bool {
	return strings.TrimSpace(c.Database) != ""
}
