package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"puppyspa/waitlist-service/internal/logging"
	"puppyspa/waitlist-service/internal/store"
	"puppyspa/waitlist-service/internal/store/local"
	"puppyspa/waitlist-service/internal/waitlist"
)

// AppContext holds the dependencies shared by every command. It is filled in
// by the root command before any subcommand runs.
type AppContext struct {
	Ctx     context.Context
	Store   store.WaitingListStore
	Service *waitlist.Service
	Logger  *zap.Logger
}

type rootFlags struct {
	storePath string
	timezone  string
	verbose   bool
}

func NewRootCmd() *cobra.Command {
	app := &AppContext{}
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:          "waitlistctl",
		Short:        "Puppy Spa waiting list tool",
		Long:         `Manage the Puppy Spa day lists stored in the local JSON store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Context(), app, flags)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Logger != nil {
				_ = app.Logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.storePath, "store", "s", "puppy-spa-waiting-lists.json", "Path to the local store file")
	rootCmd.PersistentFlags().StringVar(&flags.timezone, "timezone", "Local", "Timezone that decides which day is today")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log store operations")

	rootCmd.AddCommand(startDayCmd(app))
	rootCmd.AddCommand(showCmd(app))
	rootCmd.AddCommand(addCmd(app))
	rootCmd.AddCommand(toggleCmd(app))
	rootCmd.AddCommand(moveCmd(app))
	rootCmd.AddCommand(daysCmd(app))
	rootCmd.AddCommand(searchCmd(app))
	rootCmd.AddCommand(importCmd(app))

	return rootCmd
}

func initApp(ctx context.Context, app *AppContext, flags *rootFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	location, err := time.LoadLocation(flags.timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", flags.timezone, err)
	}

	st, err := local.Open(flags.storePath, local.Options{})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	logger.Debug("store opened", zap.String("path", st.Path()))

	app.Ctx = ctx
	app.Store = st
	app.Logger = logger
	app.Service = waitlist.NewService(st, waitlist.Options{Location: location, Logger: logger})
	return nil
}

// dateOrToday returns the --date value, falling back to today's date.
func (app *AppContext) dateOrToday(date string) string {
	if date == "" {
		return app.Service.Today()
	}
	return date
}
