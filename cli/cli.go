// Package cli provides the command line of a kour application: run, routes,
// migrate and version, built on cobra.
//
// An application's main hands its route setup to Execute:
//
//	func main() {
//	    cli.Execute(cli.Application{
//	        Name:       "users",
//	        Setup:      routes.Register,
//	        Migrations: migrations.FS,
//	    })
//	}
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/karloscodes/kour"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ErrNoDatasource is returned by migrate when the configuration names no database.
var ErrNoDatasource = errors.New("cli: no datasource configured")

// Application describes what the commands operate on.
type Application struct {
	// Name is the command name shown in usage. Default: "kour".
	Name string

	// Version overrides the build-time version.
	Version string

	// Setup registers routes and middleware on a freshly loaded app.
	Setup func(app *kour.App) error

	// Migrations holds goose SQL files under MigrationsDir (default ".").
	Migrations    fs.FS
	MigrationsDir string

	// Options are applied to every app the commands build.
	Options []kour.AppOption
}

// Execute runs the root command and exits non-zero on error.
func Execute(a Application) {
	if err := NewRootCommand(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree for a.
func NewRootCommand(a Application) *cobra.Command {
	name := a.Name
	if name == "" {
		name = "kour"
	}

	var configPath string
	rootCmd := &cobra.Command{
		Use:           name,
		Short:         "Run and manage a kour application",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("KOUR_CONFIG"), "Configuration file (YAML)")

	load := func() (*kour.App, error) {
		app, err := kour.Load(configPath, a.Options...)
		if err != nil {
			return nil, err
		}
		if a.Setup != nil {
			if err := a.Setup(app); err != nil {
				return nil, errors.Join(err, app.Close())
			}
		}
		return app, nil
	}

	rootCmd.AddCommand(
		runCmd(load),
		routesCmd(load),
		migrateCmd(load, a),
		versionCmd(a),
	)
	return rootCmd
}
