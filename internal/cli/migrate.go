package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aimd54/streakd/internal/repository"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Long: `Bring the database schema up to date.

PostgreSQL runs the embedded versioned SQL migrations. SQLite uses the
model definitions directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}

			db, err := repository.NewDB(&cfg.Database, log)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer func() { _ = db.Close() }()

			if err := repository.Migrate(db, &cfg.Database, log); err != nil {
				return WrapExitError(ExitCommandError, "migration failed", err)
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, true,
				map[string]string{"driver": cfg.Database.Driver},
				func(w io.Writer) { fmt.Fprintf(w, "Schema migrated (%s)\n", cfg.Database.Driver) })
		},
	}
}
