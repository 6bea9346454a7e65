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

	"github.com/mjcaley/contortionist/framework/future"
)

// opFunc is executed by the worker goroutine. It is the only kind of code
// allowed to use the session.
type opFunc func(s *session) (interface{}, error)

type completion struct {
	kind  string
	query string
	op    opFunc

	// stop marks the sentinel that makes the worker exit.
	stop bool

	fut *future.Future[interface{}]
}

func newCompletion(kind, query string, op opFunc) *completion {
	return &completion{
		kind:  kind,
		query: query,
		op:    op,
		fut:   future.New[interface{}](),
	}
}

func stopCompletion() *completion {
	return &completion{
		kind: "stop",
		stop: true,
		fut:  future.New[interface{}](),
	}
}

// wait blocks until the worker stores the result or ctx is done. In the
// latter case the operation is still executed, but its result is lost.
func (c *completion) wait(ctx context.Context) (interface{}, error) {
	return c.fut.GetContext(ctx)
}
