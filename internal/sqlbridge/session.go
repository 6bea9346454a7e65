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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mjcaley/contortionist/framework/log"
)

// session is the worker-owned state. It must only be used from the worker
// goroutine.
type session struct {
	db   *sql.DB
	conn *sql.Conn
	opts Options
	log  log.Logger

	// ctx is the worker context. Caller contexts never reach the driver.
	ctx context.Context

	// stmts caches prepared statements that do not return rows. nil if
	// disabled.
	stmts *lru.Cache[string, *sql.Stmt]

	inTx bool
	// txStale is set when inTx can not be derived from the executed
	// statements and must be queried from the database.
	txStale bool

	cursors map[*cursorHandle]struct{}
}

// txProbes are registered by driver-specific files for drivers that can
// report whether the connection is in autocommit mode. ok is false if the
// driver connection has an unexpected type.
var txProbes = map[string]func(driverConn interface{}) (inTx, ok bool){}

// cursorHandle is the worker-side part of a Cursor.
type cursorHandle struct {
	rows      *sql.Rows
	columns   []Column
	decoders  []valueDecoder
	rowCount  int64
	lastRowID int64

	// released is set once the cursor is closed. Operations submitted
	// concurrently with Close observe it and fail.
	released bool
}

func newCursorHandle() *cursorHandle {
	return &cursorHandle{rowCount: -1}
}

// cursorStats is a snapshot of cursor properties passed back to callers.
type cursorStats struct {
	rowCount  int64
	lastRowID int64
	columns   []Column
}

// cursorResult is the value produced by every cursor operation.
type cursorResult struct {
	rows  []Row
	stats cursorStats
}

func openSession(ctx context.Context, location string, opts Options, logger log.Logger) (*session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	dsn, err := opts.dsn(location)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, err
	}
	// The DB is used only as a connector for a single pinned connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	driverOpens.WithLabelValues(opts.Driver).Inc()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.Timeout.Milliseconds())); err != nil {
		conn.Close()
		db.Close()
		return nil, err
	}

	s := &session{
		db:      db,
		conn:    conn,
		opts:    opts,
		log:     logger,
		ctx:     context.Background(),
		cursors: make(map[*cursorHandle]struct{}),
	}
	if opts.CachedStatements > 0 {
		s.stmts, err = lru.NewWithEvict[string, *sql.Stmt](opts.CachedStatements, func(query string, stmt *sql.Stmt) {
			if err := stmt.Close(); err != nil {
				s.log.Error("failed to close cached statement", err, "query", query)
			}
		})
		if err != nil {
			conn.Close()
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// close releases all driver resources. Open rows must be closed before the
// connection, otherwise sql.Conn.Close blocks forever.
func (s *session) close() error {
	for h := range s.cursors {
		s.releaseCursor(h)
	}
	if s.stmts != nil {
		s.stmts.Purge()
	}

	var errs []error
	if s.inTx {
		s.log.Msg("rolling back transaction left open on close")
		if err := s.rollback(); err != nil {
			errs = append(errs, fmt.Errorf("rollback: %w", err))
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// track registers the handle so its rows are closed on shutdown.
func (s *session) track(h *cursorHandle) error {
	if h.released {
		return ErrCursorClosed
	}
	s.cursors[h] = struct{}{}
	return nil
}

func (s *session) releaseCursor(h *cursorHandle) {
	h.closeRows(s.log)
	h.released = true
	delete(s.cursors, h)
}

func (h *cursorHandle) closeRows(logger log.Logger) {
	if h.rows == nil {
		return
	}
	if err := h.rows.Close(); err != nil {
		logger.Error("failed to close rows", err)
	}
	h.rows = nil
}

func (h *cursorHandle) reset(logger log.Logger) {
	h.closeRows(logger)
	h.columns = nil
	h.decoders = nil
	h.rowCount = -1
}

func (h *cursorHandle) stats() cursorStats {
	return cursorStats{
		rowCount:  h.rowCount,
		lastRowID: h.lastRowID,
		columns:   h.columns,
	}
}

func (h *cursorHandle) attach(rows *sql.Rows, detect DetectTypes) error {
	types, err := rows.ColumnTypes()
	if err != nil {
		return err
	}

	columns := make([]Column, len(types))
	decoders := make([]valueDecoder, len(types))
	for i, ct := range types {
		name := ct.Name()
		decl := ct.DatabaseTypeName()

		var conv string
		if detect&DetectColNames != 0 {
			if stripped, typ, ok := splitColName(name); ok {
				name, conv = stripped, typ
			}
		}
		if conv == "" && detect&DetectDeclTypes != 0 {
			conv = decl
		}
		if detect != 0 {
			decoders[i] = decoderFor(conv)
		}
		columns[i] = Column{Name: name, DeclType: decl}
	}

	h.rows = rows
	h.columns = columns
	h.decoders = decoders
	return nil
}

// next returns the next row, or nil if the result set is exhausted.
func (h *cursorHandle) next(logger log.Logger) (Row, error) {
	if h.rows == nil {
		return nil, nil
	}
	if !h.rows.Next() {
		err := h.rows.Err()
		h.closeRows(logger)
		return nil, err
	}

	row := make(Row, len(h.columns))
	ptrs := make([]interface{}, len(row))
	for i := range row {
		ptrs[i] = &row[i]
	}
	if err := h.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, dec := range h.decoders {
		if dec == nil {
			continue
		}
		val, err := dec(row[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", h.columns[i].Name, err)
		}
		row[i] = val
	}
	return row, nil
}

func (s *session) trackTx(st statement, query string) {
	switch st.txEffect(query) {
	case txBegin:
		s.inTx = true
	case txEnd:
		s.inTx = false
	case txUnknown:
		s.txStale = true
	}
}

// refreshTx brings inTx in line with the database. Drivers with a probe are
// queried after every operation, others only after a failure or a
// statement with unknown effect.
func (s *session) refreshTx(failed bool) {
	inTx, ok := s.driverInTx()
	if !ok {
		if !failed && !s.txStale {
			return
		}
		var err error
		inTx, err = s.probeTx()
		if err != nil {
			s.log.Error("failed to query transaction state", err)
			return
		}
	}
	s.txStale = false

	if inTx != s.inTx {
		s.log.DebugMsg("transaction state changed by the database", "in_tx", inTx)
		s.inTx = inTx
	}
}

func (s *session) driverInTx() (inTx, ok bool) {
	probe := txProbes[s.opts.Driver]
	if probe == nil {
		return false, false
	}
	err := s.conn.Raw(func(driverConn interface{}) error {
		inTx, ok = probe(driverConn)
		return nil
	})
	if err != nil {
		return false, false
	}
	return inTx, ok
}

// probeTx checks whether a transaction is open using plain SQL. BEGIN is
// refused only inside a transaction, an accepted one is ended right away
// without touching the database.
func (s *session) probeTx() (bool, error) {
	if _, err := s.conn.ExecContext(s.ctx, "BEGIN DEFERRED"); err != nil {
		if isNestedBegin(err) {
			return true, nil
		}
		return false, err
	}
	if _, err := s.conn.ExecContext(s.ctx, "COMMIT"); err != nil {
		return true, err
	}
	return false, nil
}

func isNestedBegin(err error) bool {
	return strings.Contains(err.Error(), "within a transaction")
}

func isNoActiveTx(err error) bool {
	return strings.Contains(err.Error(), "no transaction is active")
}

func (s *session) beginImplicit(st statement) error {
	if !st.dml || s.inTx || s.opts.IsolationLevel == IsolationAutocommit {
		return nil
	}
	if _, err := s.conn.ExecContext(s.ctx, s.opts.IsolationLevel.beginStmt()); err != nil {
		return err
	}
	s.inTx = true
	return nil
}

func (s *session) exec(query string, args []interface{}) (sql.Result, error) {
	if s.stmts == nil {
		return s.conn.ExecContext(s.ctx, query, args...)
	}

	stmt, ok := s.stmts.Get(query)
	if !ok {
		var err error
		stmt, err = s.conn.PrepareContext(s.ctx, query)
		if err != nil {
			return nil, err
		}
		s.stmts.Add(query, stmt)
	}
	return stmt.ExecContext(s.ctx, args...)
}

func (s *session) execute(h *cursorHandle, query string, args []interface{}) error {
	h.reset(s.log)

	st := parseStatement(query)
	if err := s.beginImplicit(st); err != nil {
		return err
	}

	if st.returnsRows {
		rows, err := s.conn.QueryContext(s.ctx, query, args...)
		if err != nil {
			return err
		}
		if err := h.attach(rows, s.opts.DetectTypes); err != nil {
			rows.Close()
			return err
		}
		s.trackTx(st, query)
		return nil
	}

	res, err := s.exec(query, args)
	if err != nil {
		return err
	}
	s.trackTx(st, query)

	if st.dml {
		if h.rowCount, err = res.RowsAffected(); err != nil {
			h.rowCount = -1
		}
	}
	if st.isInsert() {
		if id, err := res.LastInsertId(); err == nil {
			h.lastRowID = id
		}
	}
	return nil
}

func (s *session) executeMany(h *cursorHandle, query string, argSets [][]interface{}) error {
	h.reset(s.log)

	st := parseStatement(query)
	if st.returnsRows {
		return errors.New("statements returning rows can not be used with ExecuteMany")
	}
	if err := s.beginImplicit(st); err != nil {
		return err
	}

	var total int64
	for _, args := range argSets {
		res, err := s.exec(query, args)
		if err != nil {
			return err
		}
		if st.dml {
			n, err := res.RowsAffected()
			if err == nil {
				total += n
			}
		}
		if st.isInsert() {
			if id, err := res.LastInsertId(); err == nil {
				h.lastRowID = id
			}
		}
	}
	s.trackTx(st, query)
	if st.dml {
		h.rowCount = total
	}
	return nil
}

func (s *session) executeScript(h *cursorHandle, script string) error {
	h.reset(s.log)

	if err := s.commit(); err != nil {
		return err
	}

	// Statements are executed one by one so that the transaction state
	// reflects only the statements that ran.
	for _, stmt := range splitStatements(script) {
		if _, err := s.conn.ExecContext(s.ctx, stmt); err != nil {
			return err
		}
		s.trackTx(parseStatement(stmt), stmt)
	}
	return nil
}

func (s *session) fetch(h *cursorHandle, limit int) ([]Row, error) {
	var rows []Row
	for limit < 0 || len(rows) < limit {
		row, err := h.next(s.log)
		if err != nil {
			return rows, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *session) commit() error {
	if !s.inTx {
		return nil
	}
	if _, err := s.conn.ExecContext(s.ctx, "COMMIT"); err != nil {
		if isNoActiveTx(err) {
			s.inTx = false
			return nil
		}
		return err
	}
	s.inTx = false
	return nil
}

func (s *session) rollback() error {
	if !s.inTx {
		return nil
	}
	// The flag is dropped even if ROLLBACK fails.
	s.inTx = false
	if _, err := s.conn.ExecContext(s.ctx, "ROLLBACK"); err != nil && !isNoActiveTx(err) {
		return err
	}
	return nil
}
