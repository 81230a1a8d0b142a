package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alem-hub/kata-mentor-bot/internal/bootstrap"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram"
)

func jobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run scheduled jobs",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List scheduled jobs and their next run",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
				sched, err := app.NewScheduler(telegram.NewNotifier(app.TelegramClient()))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "JOB\tSCHEDULE\tNEXT RUN\tDESCRIPTION")
				for _, j := range sched.ListJobs() {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						j.Name, j.Schedule, j.NextRun.Format("2006-01-02 15:04 MST"), j.Description)
				}
				return w.Flush()
			}),
		},
		&cobra.Command{
			Use:   "run <name>",
			Short: "Run a job now, ignoring its schedule",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
				sched, err := app.NewScheduler(telegram.NewNotifier(app.TelegramClient()))
				if err != nil {
					return err
				}
				res, err := sched.RunNow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s finished in %s (run %s)\n",
					res.JobName, res.Duration.Round(1e6), res.RunID)
				return nil
			}),
		},
	)
	return cmd
}
