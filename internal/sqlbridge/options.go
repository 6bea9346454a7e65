/*
Contortionist - Mail content filtering relay.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors
Copyright © 2026 Contortionist contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package sqlbridge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mjcaley/contortionist/framework/config"
)

// IsolationLevel selects the BEGIN statement issued implicitly before data
// modification statements.
type IsolationLevel int

const (
	IsolationDeferred IsolationLevel = iota
	IsolationImmediate
	IsolationExclusive
	// IsolationAutocommit disables implicit transactions.
	IsolationAutocommit
)

func (l IsolationLevel) String() string {
	switch l {
	case IsolationDeferred:
		return "deferred"
	case IsolationImmediate:
		return "immediate"
	case IsolationExclusive:
		return "exclusive"
	case IsolationAutocommit:
		return "autocommit"
	}
	return fmt.Sprintf("IsolationLevel(%d)", int(l))
}

func (l IsolationLevel) beginStmt() string {
	switch l {
	case IsolationImmediate:
		return "BEGIN IMMEDIATE"
	case IsolationExclusive:
		return "BEGIN EXCLUSIVE"
	}
	return "BEGIN DEFERRED"
}

// DetectTypes is a bitmask controlling conversion of column values.
type DetectTypes int

const (
	// DetectDeclTypes converts values using the declared column type.
	DetectDeclTypes DetectTypes = 1 << iota
	// DetectColNames converts values using a type given in the column
	// name, as in `SELECT x AS "x [timestamp]"`. It takes precedence over
	// DetectDeclTypes.
	DetectColNames
)

const (
	DefaultTimeout          = 5 * time.Second
	DefaultCachedStatements = 128
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultDriver           = "sqlite"
)

// drivers contains names of the database/sql drivers compiled in.
var drivers = map[string]struct{}{}

// Drivers returns the names of the available drivers.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options control how the connection is opened and how statements are
// executed.
//
// The zero value is usable: an empty Driver means DefaultDriver, zero
// Timeout means DefaultTimeout and zero CachedStatements means
// DefaultCachedStatements. Use a negative CachedStatements to disable the
// statement cache. Zero ShutdownTimeout means Close waits as long as its
// context allows.
type Options struct {
	Driver           string
	Timeout          time.Duration
	DetectTypes      DetectTypes
	IsolationLevel   IsolationLevel
	CachedStatements int
	URI              bool
	ShutdownTimeout  time.Duration
}

// DefaultOptions returns Options with all defaults filled in.
func DefaultOptions() Options {
	return Options{
		Driver:           DefaultDriver,
		Timeout:          DefaultTimeout,
		IsolationLevel:   IsolationDeferred,
		CachedStatements: DefaultCachedStatements,
		ShutdownTimeout:  DefaultShutdownTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Driver == "" {
		o.Driver = DefaultDriver
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.CachedStatements == 0 {
		o.CachedStatements = DefaultCachedStatements
	}
	return o
}

func (o Options) validate() error {
	if _, ok := drivers[o.Driver]; !ok {
		return fmt.Errorf("sqlbridge: driver %q is not available in this build, available: %v", o.Driver, Drivers())
	}
	if o.IsolationLevel < IsolationDeferred || o.IsolationLevel > IsolationAutocommit {
		return fmt.Errorf("sqlbridge: unknown isolation level: %v", o.IsolationLevel)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("sqlbridge: negative timeout: %v", o.Timeout)
	}
	if o.ShutdownTimeout < 0 {
		return fmt.Errorf("sqlbridge: negative shutdown timeout: %v", o.ShutdownTimeout)
	}
	return nil
}

// dsn converts the location into the data source name passed to the driver.
func (o Options) dsn(location string) (string, error) {
	if o.URI {
		if !strings.HasPrefix(location, "file:") {
			return "", fmt.Errorf("sqlbridge: location %q is not a file: URI", location)
		}
		return location, nil
	}
	// Without the prefix the driver would interpret the name as an URI.
	if strings.HasPrefix(location, "file:") {
		return "./" + location, nil
	}
	return location, nil
}

// Init registers Options directives in cfg and processes it.
//
// Callers that need additional directives in the same block (e.g. location)
// should register them before calling Init.
func (o *Options) Init(cfg *config.Map) error {
	defaults := DefaultOptions()

	var detect []DetectTypes

	cfg.Enum("driver", false, false, Drivers(), defaults.Driver, &o.Driver)
	cfg.Duration("timeout", false, false, defaults.Timeout, &o.Timeout)
	config.EnumListMapped(cfg, "detect_types", false, false, map[string]DetectTypes{
		"decltypes": DetectDeclTypes,
		"colnames":  DetectColNames,
	}, nil, &detect)
	config.EnumMapped(cfg, "isolation_level", false, false, map[string]IsolationLevel{
		"deferred":   IsolationDeferred,
		"immediate":  IsolationImmediate,
		"exclusive":  IsolationExclusive,
		"autocommit": IsolationAutocommit,
	}, defaults.IsolationLevel, &o.IsolationLevel)
	cfg.Int("cached_statements", false, false, defaults.CachedStatements, &o.CachedStatements)
	cfg.Bool("uri", false, false, &o.URI)
	cfg.Duration("shutdown_timeout", false, false, defaults.ShutdownTimeout, &o.ShutdownTimeout)

	if err := cfg.Process(); err != nil {
		return err
	}

	o.DetectTypes = 0
	for _, d := range detect {
		o.DetectTypes |= d
	}

	// In config files 0 means "no cache", not "default".
	if o.CachedStatements == 0 {
		o.CachedStatements = -1
	}

	return o.validate()
}
