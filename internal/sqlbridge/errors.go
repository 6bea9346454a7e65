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
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned for operations attempted while the
	// connection is closing or closed.
	ErrNotConnected = errors.New("sqlbridge: not connected")

	// ErrAlreadyRunning is returned when a worker that is already running
	// is started again.
	ErrAlreadyRunning = errors.New("sqlbridge: worker is already running")

	// ErrShutdownTimeout is returned by Close if the worker did not finish
	// draining the queue in time. The worker keeps draining in background.
	ErrShutdownTimeout = errors.New("sqlbridge: shutdown did not complete in time")

	// ErrCursorClosed is returned for operations on a closed Cursor.
	ErrCursorClosed = errors.New("sqlbridge: cursor is closed")
)

// QueryError is returned when the driver rejects a submitted operation.
type QueryError struct {
	// Op is the bridge operation that failed, e.g. "execute" or "commit".
	Op string
	// Query is the SQL text, if any.
	Query string
	// Err is the error returned by the driver.
	Err error
}

func (e *QueryError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("sqlbridge: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sqlbridge: %s %q: %v", e.Op, e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"op": e.Op,
	}
	if e.Query != "" {
		fields["query"] = e.Query
	}
	return fields
}

// Temporary reports whether the failure was caused by lock contention
// (SQLITE_BUSY or SQLITE_LOCKED) and may succeed if retried.
func (e *QueryError) Temporary() bool {
	return isBusy(e.Err)
}

const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// busyCheckers are registered by driver-specific files.
var busyCheckers []func(error) bool

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	for _, check := range busyCheckers {
		if check(err) {
			return true
		}
	}
	return false
}
