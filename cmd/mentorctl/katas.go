package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/bootstrap"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

func kataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kata",
		Short: "Manage the kata catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <id-or-slug>",
		Short: "Fetch a kata from Codewars and add it to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			k, err := app.UseCases.AddKata.Handle(cmd.Context(), command.AddKataCommand{IDOrSlug: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", k.Name, k.ID)
			return nil
		}),
	})
	return cmd
}

func syncCommand() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull solved katas from Codewars",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			out := cmd.OutOrStdout()

			if userID != 0 {
				res, err := app.UseCases.Sync.Handle(cmd.Context(), command.SyncSolvedCommand{
					TelegramID: shared.TelegramID(userID),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d new, %d page(s)\n", res.Handle, res.NewlySolved, res.PagesFetched)
				return nil
			}

			res, err := app.UseCases.Sync.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "synced %d user(s): %d ok, %d failed, %d new in %s\n",
				res.Users, res.Succeeded, res.Failed, res.NewlySolved, res.Duration.Round(1e6))

			if len(res.Errors) == 0 {
				return nil
			}
			ids := make([]shared.TelegramID, 0, len(res.Errors))
			for id := range res.Errors {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tERROR")
			for _, id := range ids {
				fmt.Fprintf(w, "%d\t%v\n", id, res.Errors[id])
			}
			return w.Flush()
		}),
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "sync a single user by Telegram id")
	return cmd
}
