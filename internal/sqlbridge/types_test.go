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
	"testing"
	"time"
)

func TestSplitColName(t *testing.T) {
	test := func(in, name, typ string, ok bool) {
		t.Helper()
		gotName, gotTyp, gotOk := splitColName(in)
		if gotName != name || gotTyp != typ || gotOk != ok {
			t.Errorf("%q: want (%q, %q, %v), got (%q, %q, %v)", in, name, typ, ok, gotName, gotTyp, gotOk)
		}
	}

	test("created [timestamp]", "created", "timestamp", true)
	test("x[bool]", "x", "bool", true)
	test("plain", "plain", "", false)
	test("empty []", "empty []", "", false)
	test("unterminated [date", "unterminated [date", "", false)
}

func TestDecoders(t *testing.T) {
	ts := time.Date(2020, 5, 17, 13, 45, 10, 0, time.UTC)

	test := func(typ string, in, want interface{}, fail bool) {
		t.Helper()
		dec := decoderFor(typ)
		if dec == nil {
			t.Fatalf("%s: no decoder", typ)
		}
		got, err := dec(in)
		if (err != nil) != fail {
			t.Errorf("%s %v: unexpected error state: %v", typ, in, err)
			return
		}
		if fail {
			return
		}
		if wantT, ok := want.(time.Time); ok {
			gotT, ok := got.(time.Time)
			if !ok || !gotT.Equal(wantT) {
				t.Errorf("%s %v: want %v, got %v", typ, in, want, got)
			}
			return
		}
		if got != want {
			t.Errorf("%s %v: want %#v, got %#v", typ, in, want, got)
		}
	}

	test("TIMESTAMP", "2020-05-17 13:45:10", ts, false)
	test("timestamp", []byte("2020-05-17T13:45:10Z"), ts, false)
	test("DATETIME", "2020-05-17 15:45:10+02:00", ts, false)
	test("TIMESTAMP", int64(ts.Unix()), ts, false)
	test("TIMESTAMP", ts, ts, false)
	test("TIMESTAMP", "yesterday", nil, true)
	test("DATE", "2020-05-17", time.Date(2020, 5, 17, 0, 0, 0, 0, time.UTC), false)
	test("DATE", "17.05.2020", nil, true)
	test("BOOL", int64(1), true, false)
	test("BOOLEAN", int64(0), false, false)
	test("bool", "true", true, false)
	test("BOOL", "maybe", nil, true)
	test("VARCHAR(32)", []byte("text"), "text", false)
	test("TEXT", "text", "text", false)
	test("TEXT", nil, nil, false)

	if decoderFor("INTEGER") != nil {
		t.Error("INTEGER should not have a decoder")
	}
	if decoderFor("") != nil {
		t.Error("empty type should not have a decoder")
	}
}
