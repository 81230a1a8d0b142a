package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/bootstrap"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

func rotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Pair every mentee with a mentor for today",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			res, err := app.UseCases.Engine.RunRotation(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rotation %s: %d pair(s), %d fallback(s), %d skipped\n",
				res.Day, len(res.Pairs), res.Fallbacks, len(res.Skipped))
			return printLatest(cmd, app)
		}),
	}
}

func reshuffleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reshuffle",
		Short: "Delete the latest rotation and run a new one",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			res, err := app.UseCases.Engine.Reshuffle(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d pair(s) of %s, created %d pair(s)\n",
				res.Deleted.Deleted, res.Deleted.Day, len(res.Rotation.Pairs))
			return printLatest(cmd, app)
		}),
	}
}

func deleteRotationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-rotation",
		Short: "Delete every pair of the latest rotation day",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			res, err := app.UseCases.Engine.DeleteLatestRotation(cmd.Context())
			if err != nil {
				return err
			}
			if res.Day.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "no rotation to delete")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d pair(s) of %s\n", res.Deleted, res.Day)
			return nil
		}),
	}
}

func pairsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "Show the latest rotation",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			return printLatest(cmd, app)
		}),
	}
}

func printLatest(cmd *cobra.Command, app *bootstrap.App) error {
	latest, err := app.UseCases.LatestRotation.Handle(cmd.Context())
	if err != nil {
		return err
	}
	return writeRotation(cmd.OutOrStdout(), latest)
}

func writeRotation(out io.Writer, r *query.LatestRotationResult) error {
	if r.IsEmpty() {
		_, err := fmt.Fprintln(out, "no rotations yet")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "DAY %s\n", r.Day)
	fmt.Fprintln(w, "#\tMENTOR\tMENTEE")
	for _, row := range r.Rows {
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Number, row.MentorName, row.MenteeName)
	}
	return w.Flush()
}

func loadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Show mentee counts per mentor for the latest rotation",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			load, err := app.UseCases.MentorLoad.Handle(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "DAY %s, %d mentee(s)\n", load.Day, load.TotalMentees)
			fmt.Fprintln(w, "MENTOR\tMENTEES")
			for _, m := range load.Mentors {
				fmt.Fprintf(w, "%s\t%d\n", m.MentorName, m.Mentees)
			}
			return w.Flush()
		}),
	}
}

func ratingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ratings",
		Short: "Show average feedback per mentor",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			ratings, err := app.UseCases.MentorRatings.Handle(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MENTOR\tVOTES\tAVERAGE")
			for _, r := range ratings {
				fmt.Fprintf(w, "%s\t%d\t%.2f\n", r.MentorName, r.Count, r.Average)
			}
			return w.Flush()
		}),
	}
}

func availableCommand() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "available <mentor-id>",
		Short: "Check whether a mentor has no pair on a day",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid mentor id %q: %w", args[0], err)
			}

			loc := app.Config.App.Location
			asOf := time.Now().In(loc)
			if date != "" {
				day, err := shared.ParseDay(date)
				if err != nil {
					return err
				}
				asOf = day.Start(loc)
			}

			free, err := app.UseCases.MentorAvailable.Handle(cmd.Context(), shared.TelegramID(id), asOf)
			if err != nil {
				return err
			}
			state := "busy"
			if free {
				state = "available"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mentor %d is %s on %s\n", id, state, shared.DayOf(asOf, loc))
			return nil
		}),
	}
	cmd.Flags().StringVar(&date, "date", "", "day to check (YYYY-MM-DD), defaults to today")
	return cmd
}
