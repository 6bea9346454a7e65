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

/*
Package sqlbridge lets many goroutines share one blocking, thread-unsafe SQLite
connection.

Implementation summary follows.

A Conn owns exactly one worker goroutine. The worker locks itself to an OS
thread, opens the driver handle (a database/sql Conn pinned from a DB with a
single connection) and is the only code that ever touches it.

Every Conn and Cursor method is translated into a completion: a closure over
the worker-side session plus a future for its result. Completions are pushed
into an unbounded FIFO dispatch queue and executed by the worker strictly in
push order. The worker stores the result into the future before the waiting
caller is woken, so callers never see partial results.

Driver errors are wrapped into *QueryError and delivered to the caller that
submitted the failing operation. They never stop the worker. Facade-level
violations (closed connection, closed cursor) are reported synchronously
without involving the worker.

Close pushes a stop sentinel after everything submitted before it, waits for
the worker to drain the queue, close the driver handle and exit. A caller that
stops waiting (context cancellation) does not retract its operation: it still
runs, and the result is discarded.

Statement semantics follow the classic Python sqlite3 module: implicit BEGIN
before data modification statements unless IsolationAutocommit is used,
RowCount of -1 for queries, LastRowID updated by INSERT and REPLACE, and a
prepared statement cache for statements that do not return rows.
*/
package sqlbridge
