package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

func newMigrateCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Long: `Detects the current schema version, from the schema_version table or
from the table layout of stores created before versioning, and applies
every pending migration in one transaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(configPath())
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := newMigrator(db, log)
			if err != nil {
				return err
			}
			report, err := m.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.Detected.Inferred() {
				fmt.Fprintf(out, "detected version %d from table layout (%s)\n", report.Detected.Version, report.Detected.Source)
			}
			if len(report.Applied) == 0 {
				fmt.Fprintf(out, "schema is up to date at version %d\n", report.To)
				return nil
			}
			fmt.Fprintf(out, "migrated from version %d to %d (applied %v)\n", report.From, report.To, report.Applied)
			return nil
		},
	}
	cmd.AddCommand(newMigrateStatusCmd(configPath))
	return cmd
}

func newMigrateStatusCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the recorded schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(configPath())
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := newMigrator(db, log)
			if err != nil {
				return err
			}
			st, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			printMigrationStatus(cmd, st)
			return nil
		},
	}
}

func printMigrationStatus(cmd *cobra.Command, st *database.Status) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "current version:\t%d\n", st.Current)
	if st.Detected.Inferred() {
		fmt.Fprintf(w, "detected from:\t%s\n", st.Detected.Source)
	}
	fmt.Fprintf(w, "latest version:\t%d\n", st.Latest)
	for _, rec := range st.History {
		fmt.Fprintf(w, "applied:\tv%d\t%s\n", rec.Version, database.FormatTime(rec.AppliedAt))
	}
	for _, mig := range st.Pending {
		fmt.Fprintf(w, "pending:\tv%d\t%s\n", mig.Version, mig.Name)
	}
}
