package main

import (
	"context"
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/typecore/internal/cli"
	"github.com/pthm/typecore/internal/doctor"
	"github.com/pthm/typecore/pkg/storage/postgres"
)

var (
	doctorDB      string
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long:  `Run health checks against a live typecore deployment.`,
	Example: `  # Run health checks
  typecore doctor --db postgres://localhost/typecore`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verboseFlag := resolveBool(doctorVerbose, cfg.Doctor.Verbose)
		dsn, err := resolveDSN(doctorDB)
		if err != nil {
			return err
		}
		return runDoctor(dsn, verboseFlag)
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorDB, "db", "", "database URL")
	f.BoolVar(&doctorVerbose, "verbose", false, "show detailed output")
}

func runDoctor(dsn string, verboseFlag bool) error {
	ctx := context.Background()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer store.Close()

	d := doctor.New(db, store)
	report, err := d.Run(ctx)
	if err != nil {
		return cli.GeneralError("running doctor", err)
	}

	report.Print(os.Stdout, verboseFlag)
	if report.HasErrors() {
		return cli.GeneralError("health checks failed", nil)
	}
	return nil
}
