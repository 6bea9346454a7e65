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

package config

import (
	"strings"
	"testing"
	"time"
)

func TestMapProcess(t *testing.T) {
	cfg := NewMap(map[string]interface{}{"debug": true}, Node{
		Children: []Node{
			{Name: "timeout", Args: []string{"10s"}},
			{Name: "cached_statements", Args: []string{"64"}},
			{Name: "mode", Args: []string{"Immediate"}},
		},
	})

	var (
		timeout  time.Duration
		cached   int
		mode     int
		debug    bool
		location string
	)
	cfg.Duration("timeout", false, false, 5*time.Second, &timeout)
	cfg.Int("cached_statements", false, false, 128, &cached)
	EnumMapped(cfg, "mode", false, false, map[string]int{"deferred": 1, "immediate": 2}, 1, &mode)
	cfg.Bool("debug", true, false, &debug)
	cfg.String("location", false, false, ":memory:", &location)

	if err := cfg.Process(); err != nil {
		t.Fatal("Process failed:", err)
	}

	if timeout != 10*time.Second {
		t.Error("wrong timeout:", timeout)
	}
	if cached != 64 {
		t.Error("wrong cached_statements:", cached)
	}
	if mode != 2 {
		t.Error("enum value is not mapped case-insensitively:", mode)
	}
	if !debug {
		t.Error("global value is not inherited")
	}
	if location != ":memory:" {
		t.Error("default value is not used:", location)
	}
}

func TestMapProcess_Errors(t *testing.T) {
	check := func(block Node, setup func(*Map), substr string) {
		t.Helper()
		cfg := NewMap(nil, block)
		setup(cfg)
		err := cfg.Process()
		if err == nil {
			t.Fatal("expected an error")
		}
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("error %q does not mention %q", err, substr)
		}
	}

	var s string
	var d time.Duration

	check(Node{Children: []Node{{Name: "unknown", Args: []string{"1"}}}}, func(m *Map) {}, "unexpected directive")
	check(Node{}, func(m *Map) {
		m.String("location", false, true, "", &s)
	}, "missing required directive: location")
	check(Node{Children: []Node{{Name: "timeout", Args: []string{"-1s"}}}}, func(m *Map) {
		m.Duration("timeout", false, false, 0, &d)
	}, "must not be negative")
	check(Node{Children: []Node{
		{Name: "location", Args: []string{"a"}},
		{Name: "location", Args: []string{"b"}},
	}}, func(m *Map) {
		m.String("location", false, false, "", &s)
	}, "duplicate directive")
}

func TestReadTOML(t *testing.T) {
	root, err := ReadTOML(strings.NewReader(`
debug = true
log_format = "json"

[database]
location = "relay.db"
timeout = 7
detect_types = ["decltypes", "colnames"]
uri = false
`), "test.toml")
	if err != nil {
		t.Fatal(err)
	}

	if len(root.Children) != 3 {
		t.Fatal("wrong amount of top-level nodes:", root.Children)
	}
	db, ok := root.Child("database")
	if !ok {
		t.Fatal("database block is missing")
	}

	var (
		location string
		timeout  time.Duration
		types    []string
		uri      bool
	)
	cfg := NewMap(nil, db)
	cfg.String("location", false, true, "", &location)
	cfg.Duration("timeout", false, false, 0, &timeout)
	EnumListMapped(cfg, "detect_types", false, false, map[string]string{"decltypes": "d", "colnames": "c"}, nil, &types)
	cfg.Bool("uri", false, true, &uri)
	if err := cfg.Process(); err != nil {
		t.Fatal(err)
	}

	if location != "relay.db" || timeout != 7*time.Second || uri {
		t.Error("wrong values:", location, timeout, uri)
	}
	if len(types) != 2 || types[0] != "d" || types[1] != "c" {
		t.Error("wrong detect_types:", types)
	}
}

func TestReadTOML_Malformed(t *testing.T) {
	_, err := ReadTOML(strings.NewReader("database = [\n"), "broken.toml")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.HasPrefix(err.Error(), "broken.toml: ") {
		t.Error("error does not mention the file:", err)
	}
}
