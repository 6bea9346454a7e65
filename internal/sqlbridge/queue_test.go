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
	"testing"
	"time"
)

func TestDispatchQueue_FIFO(t *testing.T) {
	q := newDispatchQueue("test-fifo")

	const n = 100
	for i := 0; i < n; i++ {
		if err := q.push(newCompletion("test", "", nil)); err != nil {
			t.Fatal("push:", err)
		}
	}
	pushed := make([]*completion, 0, n)
	q.mu.Lock()
	for e := q.items.Front(); e != nil; e = e.Next() {
		pushed = append(pushed, e.Value.(*completion))
	}
	q.mu.Unlock()

	for i := 0; i < n; i++ {
		if c := q.pop(); c != pushed[i] {
			t.Fatalf("item %d popped out of order", i)
		}
	}
	if q.len() != 0 {
		t.Fatal("queue is not empty:", q.len())
	}
}

func TestDispatchQueue_PopBlocks(t *testing.T) {
	q := newDispatchQueue("test-block")

	popped := make(chan *completion)
	go func() {
		popped <- q.pop()
	}()

	select {
	case <-popped:
		t.Fatal("pop returned on empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	c := newCompletion("test", "", nil)
	if err := q.push(c); err != nil {
		t.Fatal("push:", err)
	}

	select {
	case got := <-popped:
		if got != c {
			t.Fatal("wrong item popped")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pop is not woken up by push")
	}
}

func TestDispatchQueue_RefusesAfterStop(t *testing.T) {
	q := newDispatchQueue("test-stop")

	first := newCompletion("test", "", nil)
	if err := q.push(first); err != nil {
		t.Fatal("push:", err)
	}
	if err := q.push(stopCompletion()); err != nil {
		t.Fatal("push stop:", err)
	}
	if err := q.push(newCompletion("test", "", nil)); !errors.Is(err, ErrNotConnected) {
		t.Fatal("push after stop should fail with ErrNotConnected, got", err)
	}
	if err := q.push(stopCompletion()); !errors.Is(err, ErrNotConnected) {
		t.Fatal("second stop should fail with ErrNotConnected, got", err)
	}

	if c := q.pop(); c != first {
		t.Fatal("work queued before stop must be popped first")
	}
	if c := q.pop(); !c.stop {
		t.Fatal("stop sentinel expected")
	}
}

func TestDispatchQueue_Refuse(t *testing.T) {
	q := newDispatchQueue("test-refuse")
	q.refuse()
	if err := q.push(newCompletion("test", "", nil)); !errors.Is(err, ErrNotConnected) {
		t.Fatal("push after refuse should fail with ErrNotConnected, got", err)
	}
}
