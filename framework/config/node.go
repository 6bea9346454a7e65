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

// Package config provides set of utilities for configuration parsing.
package config

import "fmt"

// Node struct describes a parsed configuration block or a simple directive.
//
//	name = "arg0"
//	[name]
//	children0 = ...
//	children1 = ...
type Node struct {
	// Name is the directive name (TOML key).
	Name string
	// Args are string forms of the directive value. Arrays produce
	// multiple arguments.
	Args []string

	// Children slice contains all children blocks if node is a block. Can be nil.
	Children []Node

	// File is the name of node's source file.
	File string
}

// Child returns the first child block with the specified name.
func (n Node) Child(name string) (Node, bool) {
	for _, child := range n.Children {
		if child.Name == name {
			return child, true
		}
	}
	return Node{}, false
}

func NodeErr(node Node, f string, args ...interface{}) error {
	msg := fmt.Sprintf(f, args...)
	switch {
	case node.File != "" && node.Name != "":
		return fmt.Errorf("%s: %s: %s", node.File, node.Name, msg)
	case node.File != "":
		return fmt.Errorf("%s: %s", node.File, msg)
	case node.Name != "":
		return fmt.Errorf("%s: %s", node.Name, msg)
	}
	return fmt.Errorf("%s", msg)
}
