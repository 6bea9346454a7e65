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

// Package log implements a minimalistic logging library on top of zap cores.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mjcaley/contortionist/framework/exterrors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structure that writes messages to the underlying zapcore.Core.
//
// Logger is stateless and can be copied freely. However, consider that
// underlying core will not be copied.
//
// Each log message is tagged with logger name. Timestamp and level formatting
// is done by the core encoder.
type Logger struct {
	Out   zapcore.Core
	Name  string
	Debug bool

	// Additional fields that will be added
	// to the Msg output.
	Fields map[string]interface{}
}

// Zap returns a zap.Logger writing to the same core. Debug messages are
// dropped unless l.Debug is set.
func (l Logger) Zap() *zap.Logger {
	core := l.core()
	if core == nil {
		return zap.NewNop()
	}

	var opts []zap.Option
	if !l.Debug {
		opts = append(opts, zap.IncreaseLevel(zapcore.InfoLevel))
	}
	z := zap.New(core, opts...)
	if l.Name != "" {
		z = z.Named(l.Name)
	}
	if len(l.Fields) != 0 {
		z = z.With(toZapFields(l.Fields, nil)...)
	}
	return z
}

func (l Logger) Debugf(format string, val ...interface{}) {
	l.log(zapcore.DebugLevel, fmt.Sprintf(format, val...), nil)
}

func (l Logger) Debugln(val ...interface{}) {
	l.log(zapcore.DebugLevel, strings.TrimRight(fmt.Sprintln(val...), "\n"), nil)
}

func (l Logger) Printf(format string, val ...interface{}) {
	l.log(zapcore.InfoLevel, fmt.Sprintf(format, val...), nil)
}

func (l Logger) Println(val ...interface{}) {
	l.log(zapcore.InfoLevel, strings.TrimRight(fmt.Sprintln(val...), "\n"), nil)
}

// Msg writes an event log message with key-value pairs attached.
//
// Key-value pairs are built from fields slice which should contain key strings
// followed by corresponding values. That is, for example, []interface{"key",
// "value", "key2", "value2"}.
//
// If value in fields implements LogFormatter, it will be represented by the
// string returned by FormatLog method. Same goes for fmt.Stringer and error
// interfaces.
func (l Logger) Msg(msg string, fields ...interface{}) {
	m := make(map[string]interface{}, len(fields)/2)
	fieldsToMap(fields, m)
	l.log(zapcore.InfoLevel, msg, m)
}

// Error writes an event log message containing information about the error.
// If err does have a Fields method that returns map[string]interface{}, its
// result will be added to the message.
//
// In the context of Error method, "msg" typically indicates the top-level
// context in which the error is *handled*. For example, if error leads to
// rejection of a query, msg will probably be "query failed".
func (l Logger) Error(msg string, err error, fields ...interface{}) {
	if err == nil {
		return
	}

	errFields := exterrors.Fields(err)
	allFields := make(map[string]interface{}, len(fields)+len(errFields)+2)
	for k, v := range errFields {
		allFields[k] = v
	}

	// If there is already a 'reason' field - use it, it probably
	// provides a better explanation than error text itself.
	if allFields["reason"] == nil {
		allFields["reason"] = err.Error()
	}
	fieldsToMap(fields, allFields)

	l.log(zapcore.ErrorLevel, msg, allFields)
}

func (l Logger) DebugMsg(kind string, fields ...interface{}) {
	if !l.Debug {
		return
	}
	m := make(map[string]interface{}, len(fields)/2)
	fieldsToMap(fields, m)
	l.log(zapcore.DebugLevel, kind, m)
}

func fieldsToMap(fields []interface{}, out map[string]interface{}) {
	var lastKey string
	for i, val := range fields {
		if i%2 == 0 {
			key, ok := val.(string)
			if !ok {
				// Misformatted arguments, attempt to provide useful message
				// anyway.
				out[fmt.Sprint("field", i)] = val
				lastKey = ""
				continue
			}
			lastKey = key
		} else if lastKey != "" {
			out[lastKey] = val
		}
	}
}

type LogFormatter interface {
	FormatLog() string
}

// toZapFields converts logger and message fields into zap fields sorted by
// key. Message fields override logger fields.
func toZapFields(base, fields map[string]interface{}) []zapcore.Field {
	merged := make(map[string]interface{}, len(base)+len(fields))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zapcore.Field, 0, len(keys))
	for _, k := range keys {
		switch v := merged[k].(type) {
		case time.Time:
			out = append(out, zap.String(k, v.Format("2006-01-02T15:04:05.000")))
		case time.Duration:
			out = append(out, zap.String(k, v.String()))
		case LogFormatter:
			out = append(out, zap.String(k, v.FormatLog()))
		case fmt.Stringer:
			out = append(out, zap.String(k, v.String()))
		case error:
			out = append(out, zap.String(k, v.Error()))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

func (l Logger) core() zapcore.Core {
	if l.Out != nil {
		return l.Out
	}
	return DefaultLogger.Out
}

func (l Logger) log(lvl zapcore.Level, msg string, fields map[string]interface{}) {
	if lvl == zapcore.DebugLevel && !l.Debug {
		return
	}

	core := l.core()
	if core == nil {
		// Logging is disabled - do nothing.
		return
	}

	ent := zapcore.Entry{
		Level:      lvl,
		Time:       time.Now(),
		LoggerName: l.Name,
		Message:    msg,
	}
	if ce := core.Check(ent, nil); ce != nil {
		ce.Write(toZapFields(l.Fields, fields)...)
	}
}

func encoderConfig(timestamps bool) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	}
	if timestamps {
		cfg.TimeKey = "ts"
	}
	return cfg
}

// ConsoleOutput returns a core that writes human-readable lines to w.
//
// Written messages include timestamp formatted in ISO 8601 if timestamps
// is true. Writes are serialized so w does not need to be goroutine-safe.
func ConsoleOutput(w io.Writer, timestamps bool) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig(timestamps)),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	)
}

// JSONOutput returns a core that writes one JSON document per message to w.
func JSONOutput(w io.Writer) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig(true)),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	)
}

// NopOutput returns a core that discards everything.
func NopOutput() zapcore.Core {
	return zapcore.NewNopCore()
}

// DefaultLogger is the global Logger object that is used by
// package-level logging functions.
var DefaultLogger = Logger{Out: ConsoleOutput(os.Stderr, false)}

func Debugf(format string, val ...interface{}) { DefaultLogger.Debugf(format, val...) }
func Debugln(val ...interface{})               { DefaultLogger.Debugln(val...) }
func Printf(format string, val ...interface{}) { DefaultLogger.Printf(format, val...) }
func Println(val ...interface{})               { DefaultLogger.Println(val...) }
