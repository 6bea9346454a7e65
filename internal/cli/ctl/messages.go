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
	"time"

	contortionistcli "github.com/mjcaley/contortionist/internal/cli"
	"github.com/mjcaley/contortionist/internal/msgstore"
	"github.com/urfave/cli/v2"
)

func init() {
	contortionistcli.AddSubcommand(messagesCommand())
}

func messagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "messages",
		Usage: "Stored messages management",
		Description: `These commands manipulate messages accepted by the relay.

Run 'messages init' once to create the database schema.
`,
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create missing database tables",
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					return store.Init(ctx.Context)
				},
			},
			{
				Name:      "add",
				Usage:     "Store a message",
				ArgsUsage: "[FILE]",
				Description: `Reads the message from FILE or stdin and prints the ID assigned
to it.
`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Initial message status",
						Value: "new",
					},
				},
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					return messagesAdd(store, ctx)
				},
			},
			{
				Name:      "get",
				Usage:     "Print a stored message",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "body",
						Usage: "Print the message body after metadata",
					},
				},
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					return messagesGet(store, ctx)
				},
			},
			{
				Name:      "set-status",
				Usage:     "Change message status",
				ArgsUsage: "ID STATUS",
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					return messagesSetStatus(store, ctx)
				},
			},
			{
				Name:  "list",
				Usage: "List stored messages",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "List only messages with the specified status",
					},
				},
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					return messagesList(store, ctx)
				},
			},
		},
	}
}

func messagesAdd(store *msgstore.Store, ctx *cli.Context) error {
	status, err := msgstore.ParseMessageStatus(ctx.String("status"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}

	var body []byte
	if path := ctx.Args().First(); path != "" && path != "-" {
		body, err = os.ReadFile(path)
	} else {
		body, err = io.ReadAll(ctx.App.Reader)
	}
	if err != nil {
		return err
	}

	id, err := store.CreateMessage(ctx.Context, body, status)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, id)
	return nil
}

func printMessage(w io.Writer, msg msgstore.Message) {
	fmt.Fprintf(w, "%d\t%s\t%v\t%s\t%d bytes\n", msg.ID, msg.UUID, msg.Status, msg.Created.Format(time.RFC3339), len(msg.Body))
}

func messagesGet(store *msgstore.Store, ctx *cli.Context) error {
	id, err := parseID(ctx, 0, "message ID")
	if err != nil {
		return err
	}
	msg, err := store.GetMessage(ctx.Context, id)
	if err != nil {
		return err
	}

	printMessage(ctx.App.Writer, msg)
	if ctx.Bool("body") {
		fmt.Fprintln(ctx.App.Writer)
		if _, err := ctx.App.Writer.Write(msg.Body); err != nil {
			return err
		}
	}
	return nil
}

func messagesSetStatus(store *msgstore.Store, ctx *cli.Context) error {
	id, err := parseID(ctx, 0, "message ID")
	if err != nil {
		return err
	}
	status, err := msgstore.ParseMessageStatus(ctx.Args().Get(1))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	return store.SetMessageStatus(ctx.Context, id, status)
}

func messagesList(store *msgstore.Store, ctx *cli.Context) error {
	var status msgstore.MessageStatus
	if name := ctx.String("status"); name != "" {
		var err error
		status, err = msgstore.ParseMessageStatus(name)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
		}
	}

	msgs, err := store.ListMessages(ctx.Context, status)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(ctx.App.ErrWriter, "No messages.")
	}
	for _, msg := range msgs {
		printMessage(ctx.App.Writer, msg)
	}
	return nil
}
