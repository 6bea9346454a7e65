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

// Package hooks is a registry of process-wide callbacks run on lifecycle
// events.
package hooks

import "sync"

type Event int

const (
	// EventShutdown is triggered when the process is about to stop, either
	// because the command finished or because a termination signal arrived.
	EventShutdown Event = iota
)

var (
	hooks    = make(map[Event][]func())
	hooksLck sync.Mutex
)

// takeHooks removes and returns the hooks installed for the event, so each
// hook runs at most once even if the event fires repeatedly.
func takeHooks(eventName Event) []func() {
	hooksLck.Lock()
	defer hooksLck.Unlock()
	hooksEv := hooks[eventName]
	delete(hooks, eventName)
	return hooksEv
}

// RunHooks runs the hooks installed for the specified eventName in the reverse
// order. Hooks are run without holding the registry lock.
func RunHooks(eventName Event) {
	hooks := takeHooks(eventName)
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// AddHook installs the hook to be executed when certain event occurs.
func AddHook(eventName Event, f func()) {
	hooksLck.Lock()
	defer hooksLck.Unlock()

	hooks[eventName] = append(hooks[eventName], f)
}
