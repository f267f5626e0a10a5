package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karloscodes/kour"
	"github.com/karloscodes/kour/database"
)

func migrateCmd(load func() (*kour.App, error), a Application) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.Migrations == nil {
				return fmt.Errorf("cli: application has no migrations")
			}
			app, err := load()
			if err != nil {
				return err
			}
			defer app.Close()

			pool, ok := app.Pool().(*database.Pool)
			if !ok || pool == nil {
				return ErrNoDatasource
			}
			dir := a.MigrationsDir
			if dir == "" {
				dir = "."
			}
			if err := database.Migrate(cmd.Context(), pool, a.Migrations, dir, app.Logger()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
