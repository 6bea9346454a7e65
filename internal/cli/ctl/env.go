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
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/mjcaley/contortionist/framework/config"
	"github.com/mjcaley/contortionist/framework/hooks"
	"github.com/mjcaley/contortionist/framework/log"
	contortionistcli "github.com/mjcaley/contortionist/internal/cli"
	"github.com/mjcaley/contortionist/internal/msgstore"
	"github.com/mjcaley/contortionist/internal/sqlbridge"
	"github.com/urfave/cli/v2"
)

const DefaultLocation = "contortionist.db"

func init() {
	for _, f := range globalFlags() {
		contortionistcli.AddGlobalFlag(f)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{
			Name:    "config",
			Usage:   "Configuration file to use",
			EnvVars: []string{"CONTORTIONIST_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "db",
			Usage:   "Database location, overrides database.location from the configuration file",
			EnvVars: []string{"CONTORTIONIST_DB"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Enable debug logging",
			EnvVars: []string{"CONTORTIONIST_DEBUG"},
		},
	}
}

type settings struct {
	Debug     bool
	LogFormat string
	Location  string
	Options   sqlbridge.Options
}

// parseSettings processes the top-level configuration node.
func parseSettings(root config.Node) (settings, error) {
	var (
		s      settings
		dbNode config.Node
	)

	globals := config.NewMap(nil, root)
	globals.Bool("debug", false, false, &s.Debug)
	globals.Enum("log_format", false, false, []string{"console", "json"}, "console", &s.LogFormat)
	globals.Custom("database", false, false, func() (interface{}, error) {
		return config.Node{Name: "database"}, nil
	}, func(_ *config.Map, node config.Node) (interface{}, error) {
		if len(node.Args) != 0 {
			return nil, config.NodeErr(node, "expected a block")
		}
		return node, nil
	}, &dbNode)
	if err := globals.Process(); err != nil {
		return settings{}, err
	}

	dbCfg := config.NewMap(nil, dbNode)
	dbCfg.String("location", false, false, DefaultLocation, &s.Location)
	if err := s.Options.Init(dbCfg); err != nil {
		return settings{}, err
	}
	return s, nil
}

func readSettings(ctx *cli.Context) (settings, error) {
	var root config.Node
	if path := ctx.Path("config"); path != "" {
		var err error
		root, err = config.ReadTOMLFile(path)
		if err != nil {
			return settings{}, cli.Exit(fmt.Sprintf("Error: failed to read config: %v", err), 2)
		}
	}

	s, err := parseSettings(root)
	if err != nil {
		return settings{}, cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	if ctx.IsSet("db") {
		s.Location = ctx.String("db")
	}
	if ctx.Bool("debug") {
		s.Debug = true
	}
	return s, nil
}

func (s settings) logger() log.Logger {
	out := log.ConsoleOutput(os.Stderr, true)
	if s.LogFormat == "json" {
		out = log.JSONOutput(os.Stderr)
	}
	return log.Logger{Out: out, Name: "contortionist", Debug: s.Debug}
}

func closeConn(conn *sqlbridge.Conn, logger log.Logger) {
	if err := conn.Close(context.Background()); err != nil {
		logger.Error("failed to close database", err, "location", conn.Location())
	}
	if logger.Out != nil {
		_ = logger.Out.Sync()
	}
}

// openConn opens the database configured for the command. It is closed by
// the shutdown hook.
func openConn(ctx *cli.Context) (*sqlbridge.Conn, error) {
	s, err := readSettings(ctx)
	if err != nil {
		return nil, err
	}
	logger := s.logger()
	log.DefaultLogger = logger

	conn, err := sqlbridge.Connect(ctx.Context, s.Location, s.Options, logger)
	if err != nil {
		return nil, fmt.Errorf("Error: failed to open database: %w", err)
	}
	hooks.AddHook(hooks.EventShutdown, func() {
		closeConn(conn, logger)
	})
	return conn, nil
}

func openStore(ctx *cli.Context) (*msgstore.Store, error) {
	s, err := readSettings(ctx)
	if err != nil {
		return nil, err
	}
	logger := s.logger()
	log.DefaultLogger = logger

	store, err := msgstore.Open(ctx.Context, s.Location, s.Options, logger)
	if err != nil {
		return nil, fmt.Errorf("Error: failed to open database: %w", err)
	}
	hooks.AddHook(hooks.EventShutdown, func() {
		closeConn(store.Conn(), logger)
	})
	return store, nil
}

func parseID(ctx *cli.Context, idx int, what string) (int64, error) {
	arg := ctx.Args().Get(idx)
	if arg == "" {
		return 0, cli.Exit(fmt.Sprintf("Error: %s is required", what), 2)
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("Error: malformed %s: %v", what, err), 2)
	}
	return id, nil
}
