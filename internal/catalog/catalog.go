// Package catalog provides sample objects for the inspect, edit and serve
// commands: a database driver, a connection with nested groups, and a plain
// settings map.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conduit-lang/propsheet/internal/property"
)

// ErrUnknownSample is returned by New for names not in the catalog
var ErrUnknownSample = errors.New("unknown sample")

// Driver is a database driver whose version is probed lazily
type Driver struct {
	name    string
	vendor  string
	version string
	probe   time.Duration
}

// NewDriver creates a driver whose version probe takes probe to answer
func NewDriver(name, vendor, version string, probe time.Duration) *Driver {
	return &Driver{name: name, vendor: vendor, version: version, probe: probe}
}

// PropertyMeta declares the driver's attributes
func (d *Driver) PropertyMeta() []property.Meta {
	return []property.Meta{
		{ID: "name", Order: property.Ord(1), Editable: true, Updatable: true, Description: "Driver name"},
		{ID: "vendor", Order: property.Ord(2), Description: "Database vendor"},
		{ID: "version", Order: property.Ord(3), Description: "Server version reported by the driver"},
	}
}

// Name implements property.Named
func (d *Driver) Name() string { return d.name }

// SetName renames the driver
func (d *Driver) SetName(name string) error {
	if name == "" {
		return fmt.Errorf("driver name must not be empty")
	}
	d.name = name
	return nil
}

// Vendor returns the database vendor
func (d *Driver) Vendor() string { return d.vendor }

// Version probes the server version
func (d *Driver) Version(ctx context.Context) (string, error) {
	if d.probe > 0 {
		select {
		case <-time.After(d.probe):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return d.version, nil
}

// SSLMode is the transport security setting of a connection
type SSLMode int

const (
	SSLDisable SSLMode = iota
	SSLPrefer
	SSLRequire
)

func (m SSLMode) String() string {
	switch m {
	case SSLPrefer:
		return "prefer"
	case SSLRequire:
		return "require"
	default:
		return "disable"
	}
}

// Network is the address group of a connection
type Network struct {
	Host string `prop:"order=1,editable,updatable" propdesc:"Server host name"`
	Port int    `prop:"order=2,editable,updatable" propdesc:"Server port"`
}

// Statistics are gathered from the server on demand
type Statistics struct {
	Tables int   `prop:"order=1"`
	Rows   int64 `prop:"order=2"`
	Size   int64 `prop:"order=3,expensive" propdesc:"Total size on disk, in bytes"`
}

// Connection is a saved database connection
type Connection struct {
	Name    string    `prop:"order=1,category=General,editable,updatable"`
	Network Network   `prop:"order=2,category=General,group"`
	Created time.Time `prop:"order=4,category=Info"`
	Notes   string    `prop:"order=5,category=Info,type=text,editable,updatable"`

	driver    *Driver
	sslMode   SSLMode
	persisted bool
	locked    bool
	drivers   []interface{}

	// statsMu guards stats, which the loader fills while callers validate it
	statsMu sync.Mutex
	stats   *Statistics
}

// NewConnection creates a connection using the first of drivers
func NewConnection(name string, drivers []*Driver) *Connection {
	c := &Connection{
		Name:      name,
		Network:   Network{Host: "localhost", Port: 5432},
		Created:   time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
		persisted: true,
	}
	for _, d := range drivers {
		c.drivers = append(c.drivers, d)
	}
	if len(drivers) > 0 {
		c.driver = drivers[0]
	}
	return c
}

// PropertyMeta declares the method-backed attributes
func (c *Connection) PropertyMeta() []property.Meta {
	return []property.Meta{
		{ID: "driver", Order: property.Ord(3), Category: "General", Editable: true, Updatable: true,
			ValueList: driverList{}},
		{ID: "sslMode", Name: "SSL Mode", Order: property.Ord(3), Category: "General", Type: "enum",
			Editable: true, Updatable: true,
			ValueList: property.StaticValues{Items: []interface{}{SSLDisable, SSLPrefer, SSLRequire}}},
		{ID: "statistics", Order: property.Ord(6), Category: "Info", Group: true,
			CacheValidator: func(target interface{}, _ string) bool {
				return target.(*Connection).hasStatistics()
			}},
	}
}

type driverList struct{}

func (driverList) Values(target interface{}) []interface{} {
	return target.(*Connection).drivers
}

func (driverList) AllowCustom() bool { return false }

// Driver returns the connection's driver
func (c *Connection) Driver() *Driver { return c.driver }

// SetDriver replaces the connection's driver
func (c *Connection) SetDriver(d *Driver) { c.driver = d }

// SslMode returns the transport security setting
func (c *Connection) SslMode() SSLMode { return c.sslMode }

// SetSslMode changes the transport security setting
func (c *Connection) SetSslMode(m SSLMode) { c.sslMode = m }

// Statistics gathers statistics from the server. The result is kept, so
// later reads are served from the connection's own cache.
func (c *Connection) Statistics(ctx context.Context) (*Statistics, error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if c.stats != nil {
		return c.stats, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.stats = &Statistics{Tables: 12, Rows: 48210, Size: 7340032}
	return c.stats, nil
}

func (c *Connection) hasStatistics() bool {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats != nil
}

// Refresh drops the cached statistics
func (c *Connection) Refresh() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = nil
}

// IsPersisted reports whether the connection was saved
func (c *Connection) IsPersisted() bool { return c.persisted }

// ReadOnly reports whether the connection is locked against edits
func (c *Connection) ReadOnly() bool { return c.locked }

// Lock prevents further edits
func (c *Connection) Lock() { c.locked = true }

// Defaults supplies reset values for connection attributes
type Defaults struct{}

// Default implements edit.Defaulter
func (Defaults) Default(target interface{}, d *property.Descriptor) (interface{}, bool) {
	if _, ok := target.(*Connection); !ok {
		return nil, false
	}
	switch d.ID {
	case "network.host":
		return "localhost", true
	case "network.port":
		return 5432, true
	case "sslMode":
		return SSLDisable, true
	}
	return nil, false
}

// Catalog builds fresh sample objects by name
type Catalog struct {
	probe time.Duration
}

// New creates a catalog whose lazy attributes take probe to resolve
func New(probe time.Duration) *Catalog {
	return &Catalog{probe: probe}
}

// Names returns the sample names in lexical order
func (c *Catalog) Names() []string {
	names := []string{"driver", "connection", "settings", "hosts"}
	sort.Strings(names)
	return names
}

// New returns a fresh instance of the named sample
func (c *Catalog) New(name string) (interface{}, error) {
	switch name {
	case "driver":
		return NewDriver("PostgreSQL", "PostgreSQL Global Development Group", "16.2", c.probe), nil
	case "connection":
		return NewConnection("local", c.drivers()), nil
	case "settings":
		return map[string]interface{}{
			"autocommit":  true,
			"fetch_size":  200,
			"timezone":    "UTC",
			"max_retries": 3,
		}, nil
	case "hosts":
		return []string{"db-1.internal", "db-2.internal", "db-3.internal"}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSample, name)
}

func (c *Catalog) drivers() []*Driver {
	return []*Driver{
		NewDriver("PostgreSQL", "PostgreSQL Global Development Group", "16.2", c.probe),
		NewDriver("MySQL", "Oracle", "8.0.36", c.probe),
		NewDriver("SQLite", "SQLite Consortium", "3.45.1", c.probe),
	}
}
