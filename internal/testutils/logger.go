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

package testutils

import (
	"flag"
	"os"
	"testing"

	"github.com/mjcaley/contortionist/framework/log"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

var (
	debugLog  = flag.Bool("test.debuglog", false, "(contortionist) Turn on debug log messages")
	directLog = flag.Bool("test.directlog", false, "(contortionist) Log to stderr instead of test log")
)

// Logger returns a logger that writes to the test log. Messages logged after
// the test completes are a bug and fail the test binary.
func Logger(t *testing.T, name string) log.Logger {
	if *directLog {
		return log.Logger{
			Out:   log.ConsoleOutput(os.Stderr, true),
			Name:  name,
			Debug: *debugLog,
		}
	}

	return log.Logger{
		Out:   zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)).Core(),
		Name:  name,
		Debug: *debugLog,
	}
}
