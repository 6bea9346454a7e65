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

package ctl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	contortionistcli "github.com/mjcaley/contortionist/internal/cli"
	"github.com/mjcaley/contortionist/internal/sqlbridge"
	"github.com/urfave/cli/v2"
)

func init() {
	contortionistcli.AddSubcommand(queryCommand())
	contortionistcli.AddSubcommand(scriptCommand())
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Execute a SQL statement and print the resulting rows",
		ArgsUsage: "SQL [ARGS...]",
		Description: `Executes a single SQL statement against the database and prints
resulting rows separated by tabs. Remaining arguments are bound to
statement parameters as strings.

Changes made by the statement are committed.
`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "header",
				Usage: "Print column names before rows",
			},
		},
		Action: func(ctx *cli.Context) error {
			conn, err := openConn(ctx)
			if err != nil {
				return err
			}
			return runQuery(ctx, conn)
		},
	}
}

func scriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "script",
		Usage:     "Execute a SQL script",
		ArgsUsage: "FILE",
		Description: `Executes all statements from FILE ('-' for stdin) and commits.
`,
		Action: func(ctx *cli.Context) error {
			conn, err := openConn(ctx)
			if err != nil {
				return err
			}
			return runScript(ctx, conn)
		},
	}
}

func runQuery(ctx *cli.Context, conn *sqlbridge.Conn) error {
	out := ctx.App.Writer
	if ctx.NArg() == 0 {
		return cli.Exit("Error: SQL statement is required", 2)
	}
	args := make([]interface{}, 0, ctx.NArg()-1)
	for _, arg := range ctx.Args().Slice()[1:] {
		args = append(args, arg)
	}

	cur, err := conn.Execute(ctx.Context, ctx.Args().First(), args...)
	if err != nil {
		return err
	}
	defer cur.Close(ctx.Context)

	if desc := cur.Description(); desc != nil && ctx.Bool("header") {
		names := make([]string, len(desc))
		for i, col := range desc {
			names[i] = col.Name
		}
		fmt.Fprintln(out, strings.Join(names, "\t"))
	}
	for cur.Next(ctx.Context) {
		fmt.Fprintln(out, formatRow(cur.Row()))
	}
	if err := cur.Err(); err != nil {
		return err
	}

	if cur.Description() == nil && cur.RowCount() >= 0 {
		fmt.Fprintln(ctx.App.ErrWriter, cur.RowCount(), "rows affected")
	}
	return conn.Commit(ctx.Context)
}

func runScript(ctx *cli.Context, conn *sqlbridge.Conn) error {
	path := ctx.Args().First()
	if path == "" {
		return cli.Exit("Error: FILE is required", 2)
	}

	var (
		script []byte
		err    error
	)
	if path == "-" {
		script, err = io.ReadAll(ctx.App.Reader)
	} else {
		script, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	cur, err := conn.ExecuteScript(ctx.Context, string(script))
	if err != nil {
		return err
	}
	if err := cur.Close(ctx.Context); err != nil {
		return err
	}
	return conn.Commit(ctx.Context)
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

func formatRow(row sqlbridge.Row) string {
	fields := make([]string, len(row))
	for i, v := range row {
		fields[i] = formatValue(v)
	}
	return strings.Join(fields, "\t")
}
