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
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ReadTOML parses a TOML document into a Node tree suitable for Map.
//
// Tables become blocks, arrays become directives with multiple arguments and
// scalars are converted into their string form. Keys are sorted so the
// resulting tree does not depend on map iteration order.
func ReadTOML(r io.Reader, location string) (Node, error) {
	var doc map[string]interface{}
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return Node{}, fmt.Errorf("%s: %w", location, err)
	}
	return Node{File: location, Children: tomlNodes(doc, location)}, nil
}

// ReadTOMLFile is a convenience wrapper for ReadTOML.
func ReadTOMLFile(path string) (Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return Node{}, err
	}
	defer f.Close()
	return ReadTOML(f, path)
}

func tomlNodes(table map[string]interface{}, file string) []Node {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]Node, 0, len(keys))
	for _, k := range keys {
		switch v := table[k].(type) {
		case map[string]interface{}:
			nodes = append(nodes, Node{Name: k, File: file, Children: tomlNodes(v, file)})
		case []map[string]interface{}:
			for _, sub := range v {
				nodes = append(nodes, Node{Name: k, File: file, Children: tomlNodes(sub, file)})
			}
		case []interface{}:
			args := make([]string, 0, len(v))
			for _, elem := range v {
				if sub, ok := elem.(map[string]interface{}); ok {
					nodes = append(nodes, Node{Name: k, File: file, Children: tomlNodes(sub, file)})
					continue
				}
				args = append(args, tomlScalar(elem))
			}
			if len(args) != 0 || len(v) == 0 {
				nodes = append(nodes, Node{Name: k, File: file, Args: args})
			}
		default:
			nodes = append(nodes, Node{Name: k, File: file, Args: []string{tomlScalar(v)}})
		}
	}
	return nodes
}

func tomlScalar(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
