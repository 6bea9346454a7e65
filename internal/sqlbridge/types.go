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
	"strconv"
	"strings"
	"time"
)

// Row is a single result row. Values are int64, float64, string, []byte,
// nil, or, with DetectTypes set, time.Time and bool.
type Row []interface{}

// Column describes a column of the current result set.
type Column struct {
	Name string
	// DeclType is the declared type as reported by the driver, possibly
	// empty for expressions.
	DeclType string
}

type valueDecoder func(interface{}) (interface{}, error)

// splitColName splits `name [type]` into name and type.
func splitColName(name string) (string, string, bool) {
	open := strings.LastIndexByte(name, '[')
	if open == -1 || !strings.HasSuffix(name, "]") {
		return name, "", false
	}
	typ := strings.TrimSpace(name[open+1 : len(name)-1])
	if typ == "" {
		return name, "", false
	}
	return strings.TrimSpace(name[:open]), typ, true
}

// baseType returns the upper-cased first word of the declared type, without
// the length specification.
func baseType(decl string) string {
	decl = strings.TrimSpace(decl)
	if idx := strings.IndexAny(decl, " ("); idx != -1 {
		decl = decl[:idx]
	}
	return strings.ToUpper(decl)
}

func decoderFor(typ string) valueDecoder {
	switch baseType(typ) {
	case "TIMESTAMP", "DATETIME":
		return decodeTimestamp
	case "DATE":
		return decodeDate
	case "BOOL", "BOOLEAN":
		return decodeBool
	case "TEXT", "VARCHAR", "CHAR", "CLOB":
		return decodeText
	}
	return nil
}

var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func textValue(v interface{}) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

func decodeTimestamp(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil, time.Time:
		return v, nil
	case int64:
		return time.Unix(val, 0).UTC(), nil
	case float64:
		sec := int64(val)
		return time.Unix(sec, int64((val-float64(sec))*1e9)).UTC(), nil
	}
	s, ok := textValue(v)
	if !ok {
		return v, nil
	}
	s = strings.TrimSuffix(s, "Z")
	for _, f := range timestampFormats {
		if t, err := time.ParseInLocation(f, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("malformed timestamp: %q", s)
}

func decodeDate(v interface{}) (interface{}, error) {
	if t, ok := v.(time.Time); ok {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	s, ok := textValue(v)
	if !ok {
		return v, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("malformed date: %q", s)
	}
	return t, nil
}

func decodeBool(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil, bool:
		return v, nil
	case int64:
		return val != 0, nil
	case float64:
		return val != 0, nil
	}
	s, ok := textValue(v)
	if !ok {
		return v, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("malformed boolean: %q", s)
	}
	return b, nil
}

func decodeText(v interface{}) (interface{}, error) {
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}
