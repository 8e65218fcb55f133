package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/internal/cli"
	"github.com/pthm/typecore/pkg/migrate"
	"github.com/pthm/typecore/pkg/storage/postgres"
	"github.com/pthm/typecore/pkg/typesystem"
)

var (
	migrateDB     string
	migrateSchema string
	migrateDryRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply a schema manifest to the backing store",
	Long:  `Applies every type/owns/plays/relates declaration in a schema manifest. Safe to run repeatedly: already-declared types are skipped.`,
	Example: `  # Apply the schema
  typecore migrate --db postgres://localhost/typecore

  # Preview without committing
  typecore migrate --db postgres://localhost/typecore --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(migrateSchema, cfg.Schema)
		dryRun := resolveBool(migrateDryRun, cfg.Migrate.DryRun)

		dsn, err := resolveDSN(migrateDB)
		if err != nil {
			return err
		}
		return runMigrate(dsn, schemaPath, dryRun)
	},
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateDB, "db", "", "database URL")
	f.StringVar(&migrateSchema, "schema", "", "path to the schema manifest")
	f.BoolVar(&migrateDryRun, "dry-run", false, "apply in a transaction that is rolled back rather than committed")
}

func runMigrate(dsn, schemaPath string, dryRun bool) error {
	ctx := context.Background()

	manifest, err := migrate.LoadManifestFile(schemaPath)
	if err != nil {
		return cli.SchemaError("loading schema manifest", err)
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer store.Close()

	ro, err := store.OpenReadOnly(ctx)
	if err != nil {
		return cli.DBConnectError("opening snapshot", err)
	}
	schema, err := typesystem.Load(ctx, ro)
	if err != nil {
		return cli.GeneralError("loading schema cache", err)
	}

	rw, err := store.OpenReadWrite(ctx)
	if err != nil {
		return cli.DBConnectError("opening read-write snapshot", err)
	}

	res, err := migrate.Apply(ctx, rw, schema, manifest)
	if err != nil {
		_ = rw.Rollback(ctx)
		return cli.GeneralError("applying schema manifest", err)
	}

	if dryRun {
		_ = rw.Rollback(ctx)
		if !quiet {
			fmt.Printf("dry run: would create %d type(s), skip %d already-declared\n", len(res.Created), len(res.Skipped))
		}
		return nil
	}

	record, err := rw.Finalise(ctx, engine.CommitProfile{IsolationLabel: "migrate"})
	if err != nil {
		return cli.GeneralError("committing schema manifest", err)
	}

	if !quiet {
		fmt.Printf("created %d type(s), skipped %d already-declared (sequence %d)\n",
			len(res.Created), len(res.Skipped), record.SequenceNumber)
	}
	return nil
}

func resolveDSN(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("resolving database connection", err)
	}
	return dsn, nil
}
