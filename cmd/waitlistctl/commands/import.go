package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"puppyspa/waitlist-service/internal/models"
	"puppyspa/waitlist-service/internal/waitlist"
)

// importFile is the YAML layout accepted by the import command.
type importFile struct {
	Date    string        `yaml:"date" validate:"required,datetime=2006-01-02"`
	Entries []importEntry `yaml:"entries" validate:"required,min=1,dive"`
}

type importEntry struct {
	Puppy   string    `yaml:"puppy" validate:"required"`
	Owner   string    `yaml:"owner" validate:"required"`
	Service string    `yaml:"service" validate:"required"`
	Arrival time.Time `yaml:"arrival" validate:"required"`
	Status  string    `yaml:"status" validate:"omitempty,oneof=WAITING COMPLETED"`
	Rank    int       `yaml:"rank" validate:"gte=0"`
}

func importCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Load a day's entries from a YAML file",
		Long: `Load a day's entries from a YAML file. Entries are appended to the day's list.
A non-zero rank is stored as given; the list is renumbered on the next move.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readImportFile(args[0])
			if err != nil {
				return err
			}
			imported, err := app.importDay(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s\n", imported, file.Date)
			return nil
		},
	}
}

func readImportFile(path string) (importFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return importFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var file importFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return importFile{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return importFile{}, fmt.Errorf("invalid import file %s: %w", path, err)
	}
	return file, nil
}

func (app *AppContext) importDay(file importFile) (int, error) {
	list, _, err := app.Service.GetOrCreateList(app.Ctx, file.Date)
	if err != nil {
		return 0, err
	}
	for i, item := range file.Entries {
		entry, err := app.Service.CreateEntry(app.Ctx, waitlist.CreateEntryInput{
			WaitingListID:   list.ID,
			PuppyName:       item.Puppy,
			OwnerName:       item.Owner,
			ServiceRequired: item.Service,
			ArrivalTime:     item.Arrival.Format(time.RFC3339),
		})
		if err != nil {
			return i, fmt.Errorf("entry %d (%s): %w", i+1, item.Puppy, err)
		}
		if item.Status == models.StatusCompleted {
			if _, err := app.Service.SetStatus(app.Ctx, entry.ID, item.Status); err != nil {
				return i, fmt.Errorf("entry %d (%s): %w", i+1, item.Puppy, err)
			}
		}
		if item.Rank > 0 && item.Rank != entry.Rank {
			if _, err := app.Store.SetRank(app.Ctx, entry.ID, item.Rank); err != nil {
				return i, fmt.Errorf("entry %d (%s): %w", i+1, item.Puppy, err)
			}
		}
		app.Logger.Debug("entry imported", zap.Int64("entry_id", entry.ID), zap.String("puppy", entry.PuppyName))
	}
	return len(file.Entries), nil
}
