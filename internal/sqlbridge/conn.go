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
	"fmt"
	"runtime"

	"github.com/mjcaley/contortionist/framework/log"
	"golang.org/x/sync/semaphore"
)

// Conn is a connection to a SQLite database that can be used concurrently
// from any number of goroutines.
//
// All driver calls are executed by a dedicated worker goroutine in the order
// they were submitted. A Conn must be closed using Close to release the
// database. If a Conn becomes unreachable without being closed, a finalizer
// attempts to stop the worker, but this is not guaranteed to ever happen.
type Conn struct {
	location string
	opts     Options
	log      log.Logger

	life   *lifecycle
	queue  *dispatchQueue
	worker *worker

	// txScope is held for the duration of Transaction.
	txScope *semaphore.Weighted
}

// New creates a Conn in StateCreated. The database is opened by Open or
// implicitly by the first operation.
func New(location string, opts Options, logger log.Logger) *Conn {
	opts = opts.withDefaults()
	if logger.Name == "" {
		logger.Name = "sqlbridge"
	}

	life := &lifecycle{state: StateCreated}
	queue := newDispatchQueue(location)
	c := &Conn{
		location: location,
		opts:     opts,
		log:      logger,
		life:     life,
		queue:    queue,
		worker:   newWorker(location, opts, logger, queue, life),
		txScope:  semaphore.NewWeighted(1),
	}
	runtime.SetFinalizer(c, (*Conn).finalize)
	return c
}

// Connect is a shorthand for New followed by Open.
func Connect(ctx context.Context, location string, opts Options, logger log.Logger) (*Conn, error) {
	c := New(location, opts, logger)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Open starts the worker and waits for it to open the database.
//
// Calling Open on a running Conn is a no-op. Concurrent calls share the
// same worker.
func (c *Conn) Open(ctx context.Context) error {
	switch c.life.get() {
	case StateRunning:
		return nil
	case StateClosing, StateClosed:
		return ErrNotConnected
	}

	if err := c.worker.start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		return err
	}
	if _, err := c.worker.opened.GetContext(ctx); err != nil {
		return err
	}
	if c.life.get() != StateRunning {
		return ErrNotConnected
	}
	return nil
}

func (c *Conn) ensureOpen(ctx context.Context) error {
	switch c.life.get() {
	case StateRunning:
		return nil
	case StateCreated:
		return c.Open(ctx)
	}
	return ErrNotConnected
}

// submit queues op and waits for its result.
//
// If ctx is done first, ctx.Err() is returned, the operation still runs.
func (c *Conn) submit(ctx context.Context, kind, query string, op opFunc) (interface{}, error) {
	if err := c.ensureOpen(ctx); err != nil {
		return nil, err
	}
	comp := newCompletion(kind, query, op)
	if err := c.queue.push(comp); err != nil {
		return nil, err
	}
	return comp.wait(ctx)
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return c.life.get()
}

// InTransaction reports whether a transaction was open after the last
// completed operation.
func (c *Conn) InTransaction() bool {
	return c.life.getInTx()
}

// Location returns the database location the Conn was created with.
func (c *Conn) Location() string {
	return c.location
}

// Cursor creates a new Cursor.
func (c *Conn) Cursor(ctx context.Context) (*Cursor, error) {
	if err := c.ensureOpen(ctx); err != nil {
		return nil, err
	}
	return newCursor(c), nil
}

// Execute creates a Cursor and executes the query using it.
func (c *Conn) Execute(ctx context.Context, query string, args ...interface{}) (*Cursor, error) {
	cur, err := c.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	if err := cur.Execute(ctx, query, args...); err != nil {
		cur.release()
		return nil, err
	}
	return cur, nil
}

// ExecuteMany creates a Cursor and executes the query for each set of
// arguments.
func (c *Conn) ExecuteMany(ctx context.Context, query string, argSets [][]interface{}) (*Cursor, error) {
	cur, err := c.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	if err := cur.ExecuteMany(ctx, query, argSets); err != nil {
		cur.release()
		return nil, err
	}
	return cur, nil
}

// ExecuteScript creates a Cursor and executes multiple statements using it.
func (c *Conn) ExecuteScript(ctx context.Context, script string) (*Cursor, error) {
	cur, err := c.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	if err := cur.ExecuteScript(ctx, script); err != nil {
		cur.release()
		return nil, err
	}
	return cur, nil
}

// Commit commits the pending transaction, if any.
func (c *Conn) Commit(ctx context.Context) error {
	_, err := c.submit(ctx, "commit", "", func(s *session) (interface{}, error) {
		return nil, s.commit()
	})
	return err
}

// Rollback rolls back the pending transaction, if any.
func (c *Conn) Rollback(ctx context.Context) error {
	_, err := c.submit(ctx, "rollback", "", func(s *session) (interface{}, error) {
		return nil, s.rollback()
	})
	return err
}

// Transaction calls fn and commits if it returns nil. Otherwise the
// transaction is rolled back and the error from fn is returned. If fn
// panics, the transaction is rolled back and the panic is propagated.
//
// Transaction calls on the same Conn are serialized, fn must not call
// Transaction again. Operations executed by fn using c become part of the
// transaction. Operations submitted by other goroutines outside of
// Transaction are not isolated from it.
func (c *Conn) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := c.ensureOpen(ctx); err != nil {
		return err
	}
	if err := c.txScope.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.txScope.Release(1)

	// Rollback must be delivered even if fn failed due to ctx cancellation.
	rbCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			if rbErr := c.Rollback(rbCtx); rbErr != nil {
				c.log.Error("rollback after panic failed", rbErr)
			}
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := c.Rollback(rbCtx); rbErr != nil {
			c.log.Error("rollback failed", rbErr, "reason_orig", err.Error())
		}
		return err
	}
	return c.Commit(ctx)
}

// Close waits for all operations submitted before it to complete, then
// closes the database and stops the worker.
//
// Close is a no-op if the Conn was never opened or is already closed. If
// the worker does not finish before ctx is done or Options.ShutdownTimeout
// passes, ErrShutdownTimeout is returned and the worker finishes in
// background.
func (c *Conn) Close(ctx context.Context) error {
	if !c.worker.started.Load() {
		return nil
	}

	if c.life.get() == StateCreated {
		// Opening is in progress, let it settle.
		select {
		case <-c.worker.opened.Done():
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
		}
	}

	switch c.life.get() {
	case StateClosed:
		return nil
	case StateRunning:
		if c.life.transition(StateRunning, StateClosing) {
			c.log.DebugMsg("closing", "location", c.location, "pending", c.queue.len())
			if err := c.queue.push(stopCompletion()); err != nil {
				c.log.DebugMsg("stop already queued", "location", c.location)
			}
		}
	}

	return c.waitClosed(ctx)
}

func (c *Conn) waitClosed(ctx context.Context) error {
	if c.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ShutdownTimeout)
		defer cancel()
	}

	select {
	case <-c.worker.done:
		return c.worker.closeErr
	case <-ctx.Done():
		c.log.Msg("shutdown is taking too long, worker continues in background",
			"location", c.location, "pending", c.queue.len())
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

func (c *Conn) finalize() {
	if !c.life.transition(StateRunning, StateClosing) {
		return
	}
	c.log.Msg("connection was not closed", "location", c.location)
	if err := c.queue.push(stopCompletion()); err != nil {
		c.log.Error("failed to stop worker of unreachable connection", err)
	}
}
