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

	contortionistcli "github.com/mjcaley/contortionist/internal/cli"
	"github.com/mjcaley/contortionist/internal/msgstore"
	"github.com/urfave/cli/v2"
)

func init() {
	contortionistcli.AddSubcommand(jobsCommand())
	contortionistcli.AddSubcommand(tasksCommand())
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Filtering jobs management",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a job for a message and print its ID",
				ArgsUsage: "MESSAGE_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Initial job status",
						Value: "new",
					},
				},
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					return jobsAdd(store, ctx)
				},
			},
			{
				Name:      "status",
				Usage:     "Print job status",
				ArgsUsage: "JOB_ID",
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					id, err := parseID(ctx, 0, "job ID")
					if err != nil {
						return err
					}
					status, err := store.JobStatus(ctx.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintln(ctx.App.Writer, status)
					return nil
				},
			},
			{
				Name:      "set-status",
				Usage:     "Change job status",
				ArgsUsage: "JOB_ID STATUS",
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					id, err := parseID(ctx, 0, "job ID")
					if err != nil {
						return err
					}
					status, err := msgstore.ParseJobStatus(ctx.Args().Get(1))
					if err != nil {
						return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
					}
					return store.SetJobStatus(ctx.Context, id, status)
				},
			},
		},
	}
}

func tasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Job tasks management",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a task for a job and print its ID",
				ArgsUsage: "JOB_ID NAME",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "priority",
						Usage: "Task priority, lower values are executed first",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Initial task status",
						Value: "new",
					},
				},
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					return tasksAdd(store, ctx)
				},
			},
			{
				Name:      "status",
				Usage:     "Print task status",
				ArgsUsage: "TASK_ID",
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					id, err := parseID(ctx, 0, "task ID")
					if err != nil {
						return err
					}
					status, err := store.TaskStatus(ctx.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintln(ctx.App.Writer, status)
					return nil
				},
			},
			{
				Name:      "set-status",
				Usage:     "Change task status",
				ArgsUsage: "TASK_ID STATUS",
				Action: func(ctx *cli.Context) error {
					store, err := openStore(ctx)
					if err != nil {
						return err
					}
					id, err := parseID(ctx, 0, "task ID")
					if err != nil {
						return err
					}
					status, err := msgstore.ParseTaskStatus(ctx.Args().Get(1))
					if err != nil {
						return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
					}
					return store.SetTaskStatus(ctx.Context, id, status)
				},
			},
		},
	}
}

func jobsAdd(store *msgstore.Store, ctx *cli.Context) error {
	msgID, err := parseID(ctx, 0, "message ID")
	if err != nil {
		return err
	}
	status, err := msgstore.ParseJobStatus(ctx.String("status"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	id, err := store.CreateJob(ctx.Context, msgID, status)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, id)
	return nil
}

func tasksAdd(store *msgstore.Store, ctx *cli.Context) error {
	jobID, err := parseID(ctx, 0, "job ID")
	if err != nil {
		return err
	}
	name := ctx.Args().Get(1)
	if name == "" {
		return cli.Exit("Error: task NAME is required", 2)
	}
	status, err := msgstore.ParseTaskStatus(ctx.String("status"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 2)
	}
	id, err := store.CreateTask(ctx.Context, jobID, name, ctx.Int("priority"), status)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, id)
	return nil
}
