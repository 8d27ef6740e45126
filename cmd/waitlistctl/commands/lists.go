package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"puppyspa/waitlist-service/internal/models"
	"puppyspa/waitlist-service/internal/ordering"
)

func startDayCmd(app *AppContext) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "start-day",
		Short: "Create the waiting list for a day (today by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, created, err := app.Service.GetOrCreateList(app.Ctx, app.dateOrToday(date))
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Started list %d for %s\n", list.ID, list.Date)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "List %d for %s already exists (%d entries)\n", list.ID, list.Date, len(list.Entries))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to start (YYYY-MM-DD)")
	return cmd
}

func showCmd(app *AppContext) *cobra.Command {
	var date, status string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a day's waiting list in queue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ordering.ParseFilter(status)
			if err != nil {
				return err
			}
			view, err := app.Service.GetListByDate(app.Ctx, app.dateOrToday(date), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  total %d  waiting %d  serviced %d\n\n",
				view.Date, view.Counts.Total, view.Counts.Waiting, view.Counts.Completed)
			if len(view.Entries) == 0 {
				fmt.Fprintln(out, "No entries.")
				return nil
			}
			return printEntries(out, view.Entries)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to show (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "Filter: all, waiting or serviced")
	return cmd
}

func daysCmd(app *AppContext) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "days",
		Short: "List the days that have a waiting list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				dates []string
				err   error
			)
			if month != "" {
				dates, err = app.Service.ListDatesWithData(app.Ctx, month)
			} else {
				dates, err = app.Service.ListAllDates(app.Ctx)
			}
			if err != nil {
				return err
			}
			for _, date := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), date)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Only days in this month (YYYY-MM), oldest first")
	return cmd
}

func searchCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Find entries by puppy or owner name across all days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := app.Service.SearchEntries(app.Ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "Nothing found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tID\tPUPPY\tOWNER\tSERVICE\tSTATUS")
			for _, result := range results {
				e := result.Entry
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", result.Date, e.ID, e.PuppyName, e.OwnerName, e.ServiceRequired, e.Status)
			}
			return w.Flush()
		},
	}
}

func printEntries(out io.Writer, entries []models.PuppyEntry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tID\tPUPPY\tOWNER\tSERVICE\tARRIVED\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Rank, e.ID, e.PuppyName, e.OwnerName, e.ServiceRequired,
			e.ArrivalTime.Format(time.Kitchen), e.Status)
	}
	return w.Flush()
}
