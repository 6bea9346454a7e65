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
	"reflect"
	"testing"
	"time"
)

func TestCursor_Properties(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})

	cur, err := c.Cursor(ctx)
	if err != nil {
		t.Fatal("Cursor:", err)
	}
	defer cur.Close(ctx)

	if cur.RowCount() != -1 {
		t.Error("initial RowCount: want -1, got", cur.RowCount())
	}
	if cur.ArraySize() != 1 {
		t.Error("initial ArraySize: want 1, got", cur.ArraySize())
	}
	if cur.Description() != nil {
		t.Error("initial Description is not nil")
	}

	if err := cur.Execute(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, created TIMESTAMP)"); err != nil {
		t.Fatal("Execute:", err)
	}
	if cur.RowCount() != -1 {
		t.Error("RowCount after DDL: want -1, got", cur.RowCount())
	}

	if err := cur.Execute(ctx, "INSERT INTO t (name) VALUES (?)", "a"); err != nil {
		t.Fatal("Execute:", err)
	}
	if cur.RowCount() != 1 {
		t.Error("RowCount after INSERT: want 1, got", cur.RowCount())
	}
	if cur.LastRowID() != 1 {
		t.Error("LastRowID after INSERT: want 1, got", cur.LastRowID())
	}
	if err := cur.Execute(ctx, "REPLACE INTO t (id, name) VALUES (7, 'b')"); err != nil {
		t.Fatal("Execute:", err)
	}
	if cur.LastRowID() != 7 {
		t.Error("LastRowID after REPLACE: want 7, got", cur.LastRowID())
	}

	if err := cur.Execute(ctx, "UPDATE t SET name = 'c'"); err != nil {
		t.Fatal("Execute:", err)
	}
	if cur.RowCount() != 2 {
		t.Error("RowCount after UPDATE: want 2, got", cur.RowCount())
	}
	if cur.LastRowID() != 7 {
		t.Error("LastRowID changed by UPDATE:", cur.LastRowID())
	}

	if err := cur.Execute(ctx, "SELECT id, name AS title FROM t"); err != nil {
		t.Fatal("Execute:", err)
	}
	if cur.RowCount() != -1 {
		t.Error("RowCount after SELECT: want -1, got", cur.RowCount())
	}
	desc := cur.Description()
	if len(desc) != 2 || desc[0].Name != "id" || desc[1].Name != "title" {
		t.Errorf("wrong Description: %+v", desc)
	}
}

func TestCursor_Fetch(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})
	cur := mustExec(t, c, "WITH RECURSIVE seq(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM seq WHERE n < 10) SELECT n FROM seq")
	defer cur.Close(ctx)

	row, err := cur.FetchOne(ctx)
	if err != nil {
		t.Fatal("FetchOne:", err)
	}
	if !reflect.DeepEqual(row, Row{int64(1)}) {
		t.Fatal("wrong first row:", row)
	}

	rows, err := cur.FetchMany(ctx, 0)
	if err != nil {
		t.Fatal("FetchMany:", err)
	}
	if len(rows) != 1 || rows[0][0] != int64(2) {
		t.Fatal("FetchMany with default ArraySize:", rows)
	}

	cur.SetArraySize(3)
	rows, err = cur.FetchMany(ctx, 0)
	if err != nil {
		t.Fatal("FetchMany:", err)
	}
	if len(rows) != 3 || rows[2][0] != int64(5) {
		t.Fatal("FetchMany with ArraySize 3:", rows)
	}

	rows, err = cur.FetchMany(ctx, 2)
	if err != nil {
		t.Fatal("FetchMany:", err)
	}
	if len(rows) != 2 || rows[1][0] != int64(7) {
		t.Fatal("FetchMany(2):", rows)
	}

	rows, err = cur.FetchAll(ctx)
	if err != nil {
		t.Fatal("FetchAll:", err)
	}
	if len(rows) != 3 || rows[2][0] != int64(10) {
		t.Fatal("FetchAll:", rows)
	}

	row, err = cur.FetchOne(ctx)
	if err != nil || row != nil {
		t.Fatalf("FetchOne after exhaustion: got (%v, %v)", row, err)
	}
	rows, err = cur.FetchAll(ctx)
	if err != nil || len(rows) != 0 {
		t.Fatalf("FetchAll after exhaustion: got (%v, %v)", rows, err)
	}
}

func TestCursor_Iteration(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})
	cur := mustExec(t, c, "VALUES (1), (2), (3)")
	defer cur.Close(ctx)

	var got []int64
	for cur.Next(ctx) {
		got = append(got, cur.Row()[0].(int64))
	}
	if err := cur.Err(); err != nil {
		t.Fatal("Err:", err)
	}
	if !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Fatal("wrong rows:", got)
	}

	// Iteration is not restartable.
	if cur.Next(ctx) {
		t.Fatal("Next returned true after exhaustion")
	}
	if cur.Err() != nil {
		t.Fatal("exhaustion should not be an error:", cur.Err())
	}
}

func TestCursor_Closed(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})
	cur := mustExec(t, c, "VALUES (1), (2)")

	if err := cur.Close(ctx); err != nil {
		t.Fatal("Close:", err)
	}
	if err := cur.Close(ctx); err != nil {
		t.Fatal("second Close:", err)
	}

	if _, err := cur.FetchOne(ctx); !errors.Is(err, ErrCursorClosed) {
		t.Error("FetchOne on closed cursor: want ErrCursorClosed, got", err)
	}
	if err := cur.Execute(ctx, "SELECT 1"); !errors.Is(err, ErrCursorClosed) {
		t.Error("Execute on closed cursor: want ErrCursorClosed, got", err)
	}
	if cur.Next(ctx) {
		t.Error("Next on closed cursor returned true")
	}
	if !errors.Is(cur.Err(), ErrCursorClosed) {
		t.Error("Err after Next on closed cursor:", cur.Err())
	}
	// Connection is not affected.
	mustExec(t, c, "SELECT 1")
}

func TestCursor_ExecuteMany(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})
	mustExec(t, c, "CREATE TABLE t (a INTEGER)")

	cur, err := c.ExecuteMany(ctx, "INSERT INTO t VALUES (?)", [][]interface{}{{1}, {2}, {3}})
	if err != nil {
		t.Fatal("ExecuteMany:", err)
	}
	defer cur.Close(ctx)
	if cur.RowCount() != 3 {
		t.Error("RowCount: want 3, got", cur.RowCount())
	}
	if cur.LastRowID() != 3 {
		t.Error("LastRowID: want 3, got", cur.LastRowID())
	}

	if err := cur.ExecuteMany(ctx, "UPDATE t SET a = a + 1 WHERE a >= ?", [][]interface{}{{2}, {3}}); err != nil {
		t.Fatal("ExecuteMany:", err)
	}
	// 2 rows match the first set (2, 3 -> 3, 4), 2 rows match the second
	// (3, 4 -> 4, 5).
	if cur.RowCount() != 4 {
		t.Error("RowCount: want 4, got", cur.RowCount())
	}

	var qErr *QueryError
	if err := cur.ExecuteMany(ctx, "SELECT ?", [][]interface{}{{1}}); !errors.As(err, &qErr) {
		t.Fatalf("ExecuteMany with SELECT: want QueryError, got %v", err)
	}
}

func TestCursor_ExecuteScript(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})
	mustExec(t, c, "CREATE TABLE t (a INTEGER)")
	mustExec(t, c, "INSERT INTO t VALUES (1)")
	if !c.InTransaction() {
		t.Fatal("no implicit transaction")
	}

	cur, err := c.ExecuteScript(ctx, `
		INSERT INTO t VALUES (2);
		-- comment; with a separator
		INSERT INTO t VALUES (3);
	`)
	if err != nil {
		t.Fatal("ExecuteScript:", err)
	}
	defer cur.Close(ctx)
	if cur.RowCount() != -1 {
		t.Error("RowCount after script: want -1, got", cur.RowCount())
	}
	if c.InTransaction() {
		t.Fatal("pending transaction is not committed by ExecuteScript")
	}

	if err := cur.ExecuteScript(ctx, "BEGIN; INSERT INTO t VALUES (4);"); err != nil {
		t.Fatal("ExecuteScript:", err)
	}
	if !c.InTransaction() {
		t.Fatal("BEGIN in script is not tracked")
	}
	if err := c.Rollback(ctx); err != nil {
		t.Fatal("Rollback:", err)
	}

	if err := cur.Execute(ctx, "SELECT count(*) FROM t"); err != nil {
		t.Fatal("Execute:", err)
	}
	row, err := cur.FetchOne(ctx)
	if err != nil {
		t.Fatal("FetchOne:", err)
	}
	if row[0] != int64(3) {
		t.Fatal("want 3 rows, got", row[0])
	}
}

func TestCursor_ExecuteScriptFailure(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})
	mustExec(t, c, "CREATE TABLE t (a INTEGER)")

	_, err := c.ExecuteScript(ctx, `
		BEGIN;
		INSERT INTO t VALUES (1);
		INSERT INTO missing VALUES (1);
		COMMIT;
	`)
	if err == nil {
		t.Fatal("script referencing a missing table succeeded")
	}
	if !c.InTransaction() {
		t.Fatal("transaction opened before the failing statement is not tracked")
	}

	// The connection stays usable: new statements join the open transaction
	// and Commit makes all of them durable.
	mustExec(t, c, "INSERT INTO t VALUES (2)")
	if err := c.Commit(ctx); err != nil {
		t.Fatal("Commit:", err)
	}
	if c.InTransaction() {
		t.Fatal("transaction open after Commit")
	}
	mustExec(t, c, "BEGIN")
	mustExec(t, c, "ROLLBACK")

	cur := mustExec(t, c, "SELECT count(*) FROM t")
	defer cur.Close(ctx)
	row, err := cur.FetchOne(ctx)
	if err != nil {
		t.Fatal("FetchOne:", err)
	}
	if row[0] != int64(2) {
		t.Fatal("want 2 rows, got", row[0])
	}
}

func TestCursor_Returning(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{})
	mustExec(t, c, "CREATE TABLE t (id INTEGER PRIMARY KEY, a INTEGER)")

	cur := mustExec(t, c, "INSERT INTO t (a) VALUES (10), (20) RETURNING id, a")
	defer cur.Close(ctx)
	rows, err := cur.FetchAll(ctx)
	if err != nil {
		t.Fatal("FetchAll:", err)
	}
	want := []Row{{int64(1), int64(10)}, {int64(2), int64(20)}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("wrong rows:\nwant %v\ngot  %v", want, rows)
	}
	if !c.InTransaction() {
		t.Fatal("no implicit transaction for INSERT RETURNING")
	}
}

func TestCursor_DetectTypes(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{DetectTypes: DetectDeclTypes | DetectColNames})
	mustExec(t, c, "CREATE TABLE t (d DATE, flag BOOLEAN, n INTEGER)")
	mustExec(t, c, "INSERT INTO t VALUES ('2021-03-04', 1, 5)")

	cur := mustExec(t, c, `SELECT d, flag, n, '2021-03-04 05:06:07' AS "ts [timestamp]" FROM t`)
	defer cur.Close(ctx)
	row, err := cur.FetchOne(ctx)
	if err != nil {
		t.Fatal("FetchOne:", err)
	}

	if d, ok := row[0].(time.Time); !ok || !d.Equal(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DATE column: got %#v", row[0])
	}
	if row[1] != true {
		t.Errorf("BOOLEAN column: got %#v", row[1])
	}
	if row[2] != int64(5) {
		t.Errorf("INTEGER column: got %#v", row[2])
	}
	if ts, ok := row[3].(time.Time); !ok || !ts.Equal(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)) {
		t.Errorf("column with type in name: got %#v", row[3])
	}
	if name := cur.Description()[3].Name; name != "ts" {
		t.Errorf("type is not stripped from column name: %q", name)
	}
}

func TestCursor_DetectTypes_ColNamesOnly(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{DetectTypes: DetectColNames})

	cur := mustExec(t, c, `SELECT 1 AS "ok [bool]", 'x' AS plain`)
	defer cur.Close(ctx)
	row, err := cur.FetchOne(ctx)
	if err != nil {
		t.Fatal("FetchOne:", err)
	}
	if row[0] != true {
		t.Errorf("bool column: got %#v", row[0])
	}
	if row[1] != "x" {
		t.Errorf("plain column: got %#v", row[1])
	}
}

func TestCursor_StatementCache(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{CachedStatements: 2})
	mustExec(t, c, "CREATE TABLE t (a INTEGER)")

	for i := 0; i < 5; i++ {
		mustExec(t, c, "INSERT INTO t VALUES (?)", i)
		mustExec(t, c, "UPDATE t SET a = a WHERE a = ?", i)
		mustExec(t, c, "DELETE FROM t WHERE a < ?", -i)
	}

	size, err := c.submit(ctx, "test", "", func(s *session) (interface{}, error) {
		return s.stmts.Len(), nil
	})
	if err != nil {
		t.Fatal("submit:", err)
	}
	if size != 2 {
		t.Fatal("statement cache is not bounded, size:", size)
	}
}

func TestCursor_StatementCacheDisabled(t *testing.T) {
	ctx := context.Background()
	c := testConn(t, ":memory:", Options{CachedStatements: -1})
	mustExec(t, c, "CREATE TABLE t (a INTEGER)")
	mustExec(t, c, "INSERT INTO t VALUES (1)")

	disabled, err := c.submit(ctx, "test", "", func(s *session) (interface{}, error) {
		return s.stmts == nil, nil
	})
	if err != nil {
		t.Fatal("submit:", err)
	}
	if disabled != true {
		t.Fatal("statement cache is not disabled")
	}
}

func TestCursor_OpenRowsOnClose(t *testing.T) {
	ctx := context.Background()
	c, err := Connect(ctx, ":memory:", Options{}, testLogger(t))
	if err != nil {
		t.Fatal("Connect:", err)
	}
	cur := mustExec(t, c, "VALUES (1), (2), (3)")
	if _, err := cur.FetchOne(ctx); err != nil {
		t.Fatal("FetchOne:", err)
	}

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.Close(closeCtx); err != nil {
		t.Fatal("Close with open rows:", err)
	}
}
