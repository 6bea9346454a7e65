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

package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mjcaley/contortionist/framework/exterrors"
	"github.com/mjcaley/contortionist/framework/hooks"
	"github.com/mjcaley/contortionist/framework/log"
	"github.com/urfave/cli/v2"
)

var app *cli.App

func init() {
	app = cli.NewApp()
	app.Usage = "mail content filtering relay storage tool"
	app.Description = `Contortionist is a store-and-forward mail filtering relay.

This executable manipulates the SQLite database used by the relay to keep
track of accepted messages and of filtering jobs and tasks created for them.
It can also run arbitrary SQL against it.
`
	app.Authors = []*cli.Author{
		{
			Name: "Contortionist contributors",
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		cli.HandleExitCoder(err)
		if err != nil {
			log.Println(err)
			hooks.RunHooks(hooks.EventShutdown)
			cli.OsExiter(exitCode(err))
		}
	}
	app.EnableBashCompletion = true
	app.Commands = []*cli.Command{
		{
			Name:   "generate-man",
			Hidden: true,
			Action: func(c *cli.Context) error {
				man, err := app.ToMan()
				if err != nil {
					return err
				}
				fmt.Println(man)
				return nil
			},
		},
		{
			Name:   "generate-fish-completion",
			Hidden: true,
			Action: func(c *cli.Context) error {
				cp, err := app.ToFishCompletion()
				if err != nil {
					return err
				}
				fmt.Println(cp)
				return nil
			},
		},
	}
}

// exitTempFail is EX_TEMPFAIL from sysexits.h.
const exitTempFail = 75

// exitCode tells callers whether running the command again may help, such
// as when the database was locked by another process.
func exitCode(err error) int {
	if exterrors.IsTemporary(err) {
		return exitTempFail
	}
	return 1
}

func AddGlobalFlag(f cli.Flag) {
	app.Flags = append(app.Flags, f)
	if err := f.Apply(flag.CommandLine); err != nil {
		log.Println("GlobalFlag", f, "could not be mapped to stdlib flag:", err)
	}
}

func AddSubcommand(cmd *cli.Command) {
	app.Commands = append(app.Commands, cmd)
}

// Run executes the command selected by os.Args. The command context is
// cancelled by SIGINT or SIGTERM, shutdown hooks are executed before Run
// returns.
func Run() {
	// Actual commands are registered by the ctl package.

	ctx, stop := signalContext(context.Background())
	defer stop()
	defer hooks.RunHooks(hooks.EventShutdown)

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.DefaultLogger.Error("app.Run failed", err)
	}
}
