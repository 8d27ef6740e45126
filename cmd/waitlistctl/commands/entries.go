package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"puppyspa/waitlist-service/internal/ordering"
	"puppyspa/waitlist-service/internal/waitlist"
)

func addCmd(app *AppContext) *cobra.Command {
	var input waitlist.CreateEntryInput
	var date string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a puppy to the end of a started day's list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := app.dateOrToday(date)
			list, err := app.Service.GetListByDate(app.Ctx, day, ordering.FilterAll)
			if waitlist.IsNotFound(err) {
				return fmt.Errorf("no list for %s; run start-day first", day)
			}
			if err != nil {
				return err
			}
			input.WaitingListID = list.ID
			if input.ArrivalTime == "" {
				input.ArrivalTime = time.Now().Format(time.RFC3339)
			}
			entry, err := app.Service.CreateEntry(app.Ctx, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (entry %d) at rank %d on %s\n", entry.PuppyName, entry.ID, entry.Rank, list.Date)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.PuppyName, "puppy", "", "Puppy name")
	cmd.Flags().StringVar(&input.OwnerName, "owner", "", "Owner name")
	cmd.Flags().StringVar(&input.ServiceRequired, "service", "", "Service required")
	cmd.Flags().StringVar(&input.ArrivalTime, "arrival", "", "Arrival time (RFC 3339, default now)")
	cmd.Flags().StringVar(&date, "date", "", "Day of the list (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("puppy")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func toggleCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <entry_id>",
		Short: "Flip an entry between waiting and serviced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			entry, err := app.Service.ToggleStatus(app.Ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (entry %d) is now %s\n", entry.PuppyName, entry.ID, entry.Status)
			return nil
		},
	}
}

func moveCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "move <entry_id> <to_index>",
		Short: "Move an entry to a zero-based position in its day's list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			toIndex, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			entry, err := app.Service.GetEntry(app.Ctx, id)
			if err != nil {
				return err
			}
			entries, err := app.Service.ReorderEntries(app.Ctx, waitlist.ReorderInput{
				ListID:  entry.WaitingListID,
				EntryID: id,
				ToIndex: &toIndex,
			})
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
}

func parseEntryID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", raw)
	}
	return id, nil
}
