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
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/mjcaley/contortionist/framework/future"
	"github.com/mjcaley/contortionist/framework/log"
)

// dontRecover disables panic recovery in the worker. Set by tests that need
// the panic stack.
var dontRecover = false

type worker struct {
	location string
	opts     Options
	log      log.Logger
	queue    *dispatchQueue
	life     *lifecycle

	started atomic.Bool

	// opened receives the result of opening the driver handle.
	opened *future.Future[struct{}]

	// done is closed when the worker exits. closeErr is written before.
	done     chan struct{}
	closeErr error
}

func newWorker(location string, opts Options, logger log.Logger, q *dispatchQueue, life *lifecycle) *worker {
	return &worker{
		location: location,
		opts:     opts,
		log:      logger,
		queue:    q,
		life:     life,
		opened:   future.New[struct{}](),
		done:     make(chan struct{}),
	}
}

func (w *worker) start() error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go w.run()
	return nil
}

func (w *worker) run() {
	// There is no matching UnlockOSThread: the thread is terminated together
	// with the goroutine and never returns to the scheduler pool.
	runtime.LockOSThread()

	defer close(w.done)

	s, err := w.open()
	if err != nil {
		err = &QueryError{Op: "open", Err: err}
		w.log.Error("failed to open database", err, "location", w.location)
		w.queue.refuse()
		w.closeErr = err
		w.life.advance(StateClosed)
		w.opened.Set(struct{}{}, err)
		return
	}
	w.life.transition(StateCreated, StateRunning)
	w.log.DebugMsg("database opened", "location", w.location, "driver", w.opts.Driver)
	w.opened.Set(struct{}{}, nil)

	for {
		c := w.queue.pop()
		if c.stop {
			break
		}
		w.execute(s, c)
	}

	w.closeErr = s.close()
	if w.closeErr != nil {
		w.log.Error("failed to close database", w.closeErr, "location", w.location)
	}
	w.life.setInTx(false)
	w.life.advance(StateClosed)
	w.log.DebugMsg("worker stopped", "location", w.location)
}

func (w *worker) open() (*session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	defer cancel()
	return openSession(ctx, w.location, w.opts, w.log)
}

func (w *worker) execute(s *session, c *completion) {
	start := time.Now()
	val, err := w.call(s, c)
	s.refreshTx(err != nil)
	opDuration.WithLabelValues(c.kind).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
		if !errors.Is(err, ErrCursorClosed) {
			err = &QueryError{Op: c.kind, Query: c.query, Err: err}
		}
		w.log.DebugMsg("operation failed", "op", c.kind, "query", c.query, "reason", err)
	}
	opsTotal.WithLabelValues(c.kind, result).Inc()

	// Callers observe the transaction state as of their operation.
	w.life.setInTx(s.inTx)
	c.fut.Set(val, err)
}

func (w *worker) call(s *session, c *completion) (val interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			if dontRecover {
				panic(r)
			}
			stack := debug.Stack()
			w.log.Error("panic during operation", fmt.Errorf("%v", r), "op", c.kind, "stack", string(stack))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.op(s)
}
