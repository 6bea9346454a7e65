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
	"fmt"
	"sync"
)

// ConnState is the lifecycle state of a Conn. States only move forward.
type ConnState int

const (
	StateCreated ConnState = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// lifecycle is shared by the Conn facade and its worker. It is kept outside
// of Conn so the worker does not keep the Conn reachable.
type lifecycle struct {
	mu    sync.Mutex
	state ConnState
	inTx  bool
}

func (l *lifecycle) get() ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// advance moves the state forward to s. It is a no-op if the state is
// already at or past s.
func (l *lifecycle) advance(s ConnState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s > l.state {
		l.state = s
	}
}

func (l *lifecycle) transition(from, to ConnState) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return false
	}
	l.state = to
	return true
}

func (l *lifecycle) setInTx(v bool) {
	l.mu.Lock()
	l.inTx = v
	l.mu.Unlock()
}

func (l *lifecycle) getInTx() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inTx
}
