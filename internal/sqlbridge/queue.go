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
	"container/list"
	"sync"
)

// dispatchQueue is an unbounded FIFO of completions with a single consumer.
//
// Producers never block. Once the stop sentinel is pushed, all further
// pushes fail with ErrNotConnected so nothing can be queued after it.
type dispatchQueue struct {
	location string

	mu      sync.Mutex
	items   *list.List
	stopped bool

	// notify has capacity of 1 so producers can signal without blocking
	// and without losing the wakeup.
	notify chan struct{}
}

func newDispatchQueue(location string) *dispatchQueue {
	return &dispatchQueue{
		location: location,
		items:    list.New(),
		notify:   make(chan struct{}, 1),
	}
}

func (q *dispatchQueue) push(c *completion) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrNotConnected
	}
	if c.stop {
		q.stopped = true
	}
	q.items.PushBack(c)
	q.mu.Unlock()

	if !c.stop {
		queuedOps.WithLabelValues(q.location).Inc()
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// pop blocks until an item is available.
func (q *dispatchQueue) pop() *completion {
	for {
		q.mu.Lock()
		front := q.items.Front()
		if front != nil {
			q.items.Remove(front)
		}
		q.mu.Unlock()

		if front != nil {
			c := front.Value.(*completion)
			if !c.stop {
				queuedOps.WithLabelValues(q.location).Dec()
			}
			return c
		}

		<-q.notify
	}
}

// refuse makes the queue reject further pushes without queuing a sentinel.
// Used when the worker exits before entering its loop.
func (q *dispatchQueue) refuse() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
}

func (q *dispatchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
