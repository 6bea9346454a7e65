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

// Package future implements a one-shot (value, error) container that is
// populated by one goroutine and awaited by others.
package future

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/mjcaley/contortionist/framework/log"
)

// The Future object implements a container for (value, error) pair that "will
// be populated later" and allows multiple users to wait for it to be set.
//
// Waiting never polls: Get blocks on a channel that is closed by Set after
// the pair is stored, so a waiter can never observe a partially written
// result.
//
// It should not be copied after first use.
type Future[T any] struct {
	mu  sync.RWMutex
	set bool
	val T
	err error

	notify chan struct{}
}

func New[T any]() *Future[T] {
	return &Future[T]{notify: make(chan struct{})}
}

// Set sets the Future (value, error) pair. All currently blocked and future
// Get calls will return it.
//
// Only the first call has an effect, later calls are logged and ignored.
func (f *Future[T]) Set(val T, err error) {
	if f == nil {
		panic("nil future used")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.set {
		log.DefaultLogger.Msg("Future.Set called multiple times",
			"stack", string(debug.Stack()), "value", val, "err", err)
		return
	}

	f.set = true
	f.val = val
	f.err = err

	close(f.notify)
}

// Done returns a channel that is closed once the value is set.
func (f *Future[T]) Done() <-chan struct{} {
	return f.notify
}

func (f *Future[T]) Get() (T, error) {
	if f == nil {
		panic("nil future used")
	}

	return f.GetContext(context.Background())
}

// GetContext is similar to Get but returns ctx.Err() if ctx is done before
// the value is set. The Future itself is not affected by that.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	if f == nil {
		panic("nil future used")
	}

	f.mu.RLock()
	if f.set {
		val := f.val
		err := f.err
		f.mu.RUnlock()
		return val, err
	}
	f.mu.RUnlock()

	select {
	case <-f.notify:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		panic("future: Notification received, but value is not set")
	}

	return f.val, f.err
}
