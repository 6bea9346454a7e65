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
	"strings"
	"unicode"
)

// statement describes what the bridge needs to know about a SQL statement
// before handing it to the driver.
type statement struct {
	// keyword is the upper-cased leading keyword.
	keyword string
	// returnsRows is set for statements that are executed as queries.
	returnsRows bool
	// dml is set for INSERT, UPDATE, DELETE and REPLACE.
	dml bool
}

func parseStatement(query string) statement {
	rest := skipSpaceAndComments(query)
	keyword := strings.ToUpper(leadingWord(rest))

	st := statement{keyword: keyword}
	switch keyword {
	case "SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN":
		st.returnsRows = true
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		st.dml = true
		st.returnsRows = containsWord(query, "RETURNING")
	}
	return st
}

func (st statement) isInsert() bool {
	return st.keyword == "INSERT" || st.keyword == "REPLACE"
}

type txChange int

const (
	txNone txChange = iota
	txBegin
	txEnd
	// txUnknown is returned for RELEASE, which ends the transaction only
	// when it releases the outermost savepoint.
	txUnknown
)

// txEffect returns how the statement changes the transaction state.
func (st statement) txEffect(query string) txChange {
	switch st.keyword {
	case "BEGIN", "SAVEPOINT":
		return txBegin
	case "COMMIT", "END":
		return txEnd
	case "ROLLBACK":
		// ROLLBACK TO only rewinds to a savepoint.
		if containsWord(query, "TO") {
			return txNone
		}
		return txEnd
	case "RELEASE":
		return txUnknown
	}
	return txNone
}

func skipSpaceAndComments(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx == -1 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s[2:], "*/")
			if idx == -1 {
				return ""
			}
			s = s[idx+4:]
		default:
			return s
		}
	}
}

func isWordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func leadingWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !isWordChar(r) })
	if end == -1 {
		return s
	}
	return s[:end]
}

// containsWord reports whether the upper-cased word appears in query
// outside of string literals, quoted identifiers and comments.
func containsWord(query, word string) bool {
	found := false
	scanSQL(query, func(token string) bool {
		if strings.EqualFold(token, word) {
			found = true
			return false
		}
		return true
	}, nil)
	return found
}

// scanSQL walks the query and calls onWord for every bare word and onSemi
// for every statement separator with the byte offset of the separator.
// Scanning stops if onWord returns false.
func scanSQL(query string, onWord func(string) bool, onSemi func(int)) {
	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := strings.IndexByte(query[i+1:], c)
			if end == -1 {
				return
			}
			i += end + 2
		case c == '[':
			end := strings.IndexByte(query[i+1:], ']')
			if end == -1 {
				return
			}
			i += end + 2
		case strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end == -1 {
				return
			}
			i += end + 1
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end == -1 {
				return
			}
			i += end + 4
		case c == ';':
			if onSemi != nil {
				onSemi(i)
			}
			i++
		case c < 0x80 && isWordChar(rune(c)):
			start := i
			for i < len(query) && query[i] < 0x80 && isWordChar(rune(query[i])) {
				i++
			}
			if onWord != nil && !onWord(query[start:i]) {
				return
			}
		default:
			i++
		}
	}
}

// splitStatements splits a script into separate statements. Bodies of
// CREATE TRIGGER statements are kept together.
func splitStatements(script string) []string {
	var (
		stmts     []string
		start     int
		inTrigger bool
	)
	emit := func(end int) {
		text := strings.TrimSpace(script[start:end])
		start = end + 1
		if skipSpaceAndComments(text) == "" {
			return
		}
		if inTrigger {
			last := stmts[len(stmts)-1]
			stmts[len(stmts)-1] = last + "; " + text
			words := strings.Fields(strings.ToUpper(skipSpaceAndComments(text)))
			if len(words) > 0 && words[len(words)-1] == "END" {
				inTrigger = false
			}
			return
		}
		stmts = append(stmts, text)
		if strings.EqualFold(leadingWord(skipSpaceAndComments(text)), "CREATE") && containsWord(text, "TRIGGER") {
			inTrigger = true
		}
	}
	scanSQL(script, nil, emit)
	emit(len(script))
	return stmts
}
