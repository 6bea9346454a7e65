//go:build cgo && !nosqlite3
// +build cgo,!nosqlite3

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

	sqlite3 "github.com/mattn/go-sqlite3"
)

func init() {
	drivers["sqlite3"] = struct{}{}
	busyCheckers = append(busyCheckers, func(err error) bool {
		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	})
	txProbes["sqlite3"] = func(driverConn interface{}) (bool, bool) {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return false, false
		}
		return !c.AutoCommit(), true
	}
}
