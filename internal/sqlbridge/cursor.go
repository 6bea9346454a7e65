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
	"runtime"
	"sync"
)

// Cursor executes statements and fetches their results.
//
// A Cursor is safe for concurrent use, but operations from different
// goroutines interleave in submission order, so sharing one Cursor is rarely
// useful.
type Cursor struct {
	conn *Conn
	h    *cursorHandle

	mu        sync.Mutex
	closed    bool
	arraySize int
	stats     cursorStats

	// Iteration state.
	row Row
	err error
}

func newCursor(c *Conn) *Cursor {
	cur := &Cursor{
		conn:      c,
		h:         newCursorHandle(),
		arraySize: 1,
		stats:     cursorStats{rowCount: -1},
	}
	runtime.SetFinalizer(cur, (*Cursor).release)
	return cur
}

func (cur *Cursor) check() error {
	switch cur.conn.life.get() {
	case StateClosing, StateClosed:
		return ErrNotConnected
	}
	cur.mu.Lock()
	defer cur.mu.Unlock()
	if cur.closed {
		return ErrCursorClosed
	}
	return nil
}

// run submits op bound to the cursor handle. The closure must not capture
// cur to keep the finalizer working.
func (cur *Cursor) run(ctx context.Context, kind, query string, op func(s *session, h *cursorHandle) ([]Row, error)) ([]Row, error) {
	if err := cur.check(); err != nil {
		return nil, err
	}

	h := cur.h
	val, err := cur.conn.submit(ctx, kind, query, func(s *session) (interface{}, error) {
		if err := s.track(h); err != nil {
			return nil, err
		}
		rows, err := op(s, h)
		return cursorResult{rows: rows, stats: h.stats()}, err
	})

	res, ok := val.(cursorResult)
	if !ok {
		return nil, err
	}
	cur.mu.Lock()
	cur.stats = res.stats
	cur.mu.Unlock()
	return res.rows, err
}

// Execute executes a single statement. Rows produced by it are available
// using Fetch* methods and Next.
func (cur *Cursor) Execute(ctx context.Context, query string, args ...interface{}) error {
	_, err := cur.run(ctx, "execute", query, func(s *session, h *cursorHandle) ([]Row, error) {
		return nil, s.execute(h, query, args)
	})
	return err
}

// ExecuteMany executes a data modification statement once for each set of
// arguments. RowCount is the total number of affected rows.
func (cur *Cursor) ExecuteMany(ctx context.Context, query string, argSets [][]interface{}) error {
	_, err := cur.run(ctx, "execute_many", query, func(s *session, h *cursorHandle) ([]Row, error) {
		return nil, s.executeMany(h, query, argSets)
	})
	return err
}

// ExecuteScript commits the pending transaction, if any, and executes all
// statements in script.
func (cur *Cursor) ExecuteScript(ctx context.Context, script string) error {
	_, err := cur.run(ctx, "execute_script", script, func(s *session, h *cursorHandle) ([]Row, error) {
		return nil, s.executeScript(h, script)
	})
	return err
}

// FetchOne returns the next row or nil if there are no more rows.
func (cur *Cursor) FetchOne(ctx context.Context) (Row, error) {
	rows, err := cur.run(ctx, "fetch", "", func(s *session, h *cursorHandle) ([]Row, error) {
		return s.fetch(h, 1)
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FetchMany returns up to size next rows. If size is not positive,
// ArraySize is used.
func (cur *Cursor) FetchMany(ctx context.Context, size int) ([]Row, error) {
	if size <= 0 {
		size = cur.ArraySize()
	}
	return cur.run(ctx, "fetch", "", func(s *session, h *cursorHandle) ([]Row, error) {
		return s.fetch(h, size)
	})
}

// FetchAll returns all remaining rows.
func (cur *Cursor) FetchAll(ctx context.Context) ([]Row, error) {
	return cur.run(ctx, "fetch", "", func(s *session, h *cursorHandle) ([]Row, error) {
		return s.fetch(h, -1)
	})
}

// Next fetches the next row, making it available through Row. It returns
// false when rows are exhausted or an error occurs, see Err.
func (cur *Cursor) Next(ctx context.Context) bool {
	row, err := cur.FetchOne(ctx)

	cur.mu.Lock()
	defer cur.mu.Unlock()
	cur.row, cur.err = row, err
	return err == nil && row != nil
}

// Row returns the row fetched by the last successful Next call.
func (cur *Cursor) Row() Row {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.row
}

// Err returns the error that stopped iteration, if any.
func (cur *Cursor) Err() error {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.err
}

// Close releases the result set. Closing a closed Cursor is a no-op.
func (cur *Cursor) Close(ctx context.Context) error {
	if err := cur.check(); err != nil {
		if err == ErrCursorClosed {
			return nil
		}
		return err
	}

	cur.mu.Lock()
	cur.closed = true
	cur.mu.Unlock()

	h := cur.h
	_, err := cur.conn.submit(ctx, "cursor_close", "", func(s *session) (interface{}, error) {
		s.releaseCursor(h)
		return nil, nil
	})
	return err
}

// release closes the cursor without waiting for the worker.
func (cur *Cursor) release() {
	cur.mu.Lock()
	if cur.closed {
		cur.mu.Unlock()
		return
	}
	cur.closed = true
	cur.mu.Unlock()

	if cur.conn.life.get() != StateRunning {
		return
	}
	h := cur.h
	// Errors mean the worker is stopping and releases everything anyway.
	_ = cur.conn.queue.push(newCompletion("cursor_close", "", func(s *session) (interface{}, error) {
		s.releaseCursor(h)
		return nil, nil
	}))
}

// RowCount returns the number of rows modified by the last data modification
// statement, or -1 if the last statement was a query or a script.
func (cur *Cursor) RowCount() int64 {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.stats.rowCount
}

// LastRowID returns the rowid of the last row inserted by INSERT or REPLACE.
func (cur *Cursor) LastRowID() int64 {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.stats.lastRowID
}

// Description returns columns of the current result set, or nil if the last
// statement did not return rows.
func (cur *Cursor) Description() []Column {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	if cur.stats.columns == nil {
		return nil
	}
	return append([]Column(nil), cur.stats.columns...)
}

// ArraySize returns the default number of rows returned by FetchMany.
func (cur *Cursor) ArraySize() int {
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.arraySize
}

// SetArraySize sets the default number of rows returned by FetchMany.
func (cur *Cursor) SetArraySize(n int) {
	if n < 1 {
		n = 1
	}
	cur.mu.Lock()
	defer cur.mu.Unlock()
	cur.arraySize = n
}
