package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/database"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
)

var sourceURL string

var rootCmd = &cobra.Command{
	Use:           "migrate <command>",
	Short:         "Apply the SQL migrations of the AgencyHub database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		env.SetupEnvFile()
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrate(cmd, func(m *migrate.Migrate) error {
			return report(cmd, m.Up(), "Migrations applied", "No change: database is up to date")
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrate(cmd, func(m *migrate.Migrate) error {
			return report(cmd, m.Steps(-1), "Last migration rolled back", "No change: nothing to roll back")
		})
	},
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate up or down to the given version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withMigrate(cmd, func(m *migrate.Migrate) error {
			return report(cmd, m.Migrate(uint(version)),
				fmt.Sprintf("Migrated to version %d", version),
				fmt.Sprintf("No change: database is already at version %d", version))
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current migration version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrate(cmd, func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("No migrations applied yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading version: %w", err)
			}
			suffix := ""
			if dirty {
				suffix = " (dirty)"
			}
			cmd.Printf("Current version: %d%s\n", version, suffix)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sourceURL, "source", "file://migrations", "migration source URL")
	rootCmd.AddCommand(upCmd, downCmd, gotoCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// databaseURL is the DSN of the application with multi statements enabled.
func databaseURL() string {
	return "mysql://" + database.DSN() + "&multiStatements=true"
}

func withMigrate(cmd *cobra.Command, fn func(m *migrate.Migrate) error) error {
	cmd.Printf("Connecting to %s@%s:%s/%s\n",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
	m, err := migrate.New(sourceURL, databaseURL())
	if err != nil {
		return fmt.Errorf("initializing migrate: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			cmd.PrintErrf("closing migrate: %v, %v\n", sourceErr, dbErr)
		}
	}()
	return fn(m)
}

func report(cmd *cobra.Command, err error, done, unchanged string) error {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		cmd.Println(unchanged)
		return nil
	case err != nil:
		return err
	}
	cmd.Println(done)
	return nil
}
