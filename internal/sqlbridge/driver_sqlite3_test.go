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
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mjcaley/contortionist/internal/testutils"
)

func TestSQLite3Driver(t *testing.T) {
	ctx := context.Background()
	location := filepath.Join(testutils.Dir(t), "test.db")
	c := testConn(t, location, Options{Driver: "sqlite3"})

	mustExec(t, c, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	cur, err := c.ExecuteMany(ctx, "INSERT INTO t (name) VALUES (?)", [][]interface{}{{"a"}, {"b"}})
	if err != nil {
		t.Fatal("ExecuteMany:", err)
	}
	if cur.RowCount() != 2 || cur.LastRowID() != 2 {
		t.Errorf("wrong cursor state: RowCount %d, LastRowID %d", cur.RowCount(), cur.LastRowID())
	}
	if err := c.Commit(ctx); err != nil {
		t.Fatal("Commit:", err)
	}

	cur = mustExec(t, c, "SELECT name FROM t ORDER BY id")
	rows, err := cur.FetchAll(ctx)
	if err != nil {
		t.Fatal("FetchAll:", err)
	}
	if len(rows) != 2 {
		t.Fatal("want 2 rows, got", len(rows))
	}
}

func TestSQLite3Driver_Busy(t *testing.T) {
	ctx := context.Background()
	location := filepath.Join(testutils.Dir(t), "test.db")

	holder := testConn(t, location, Options{Driver: "sqlite3"})
	mustExec(t, holder, "CREATE TABLE t (a INTEGER)")
	mustExec(t, holder, "BEGIN EXCLUSIVE")

	other := testConn(t, location, Options{Driver: "sqlite3", Timeout: 50 * time.Millisecond})
	_, err := other.Execute(ctx, "SELECT * FROM t")
	var qErr *QueryError
	if !errors.As(err, &qErr) || !qErr.Temporary() {
		t.Fatalf("want temporary QueryError, got %T: %v", err, err)
	}

	if err := holder.Rollback(ctx); err != nil {
		t.Fatal("Rollback:", err)
	}
}

func TestSQLite3Driver_TransactionState(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{Driver: "sqlite3"})
	mustExec(t, c, "CREATE TABLE t (a INTEGER)")

	// The driver reports autocommit mode, so the state is corrected even
	// after successful operations.
	comp := submitRaw(t, c, func(s *session) (interface{}, error) {
		s.inTx = true
		return nil, nil
	})
	if _, err := comp.fut.Get(); err != nil {
		t.Fatal(err)
	}
	if c.InTransaction() {
		t.Fatal("transaction state is not taken from the driver")
	}

	if _, err := c.ExecuteScript(ctx, "BEGIN; INSERT INTO t VALUES (1); INSERT INTO missing VALUES (1);"); err == nil {
		t.Fatal("script referencing a missing table succeeded")
	}
	if !c.InTransaction() {
		t.Fatal("transaction left open by the script is not reported")
	}
	if err := c.Commit(ctx); err != nil {
		t.Fatal("Commit:", err)
	}

	mustExec(t, c, "SAVEPOINT sp")
	mustExec(t, c, "RELEASE sp")
	if c.InTransaction() {
		t.Fatal("transaction open after releasing the outermost savepoint")
	}
}
