package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/internal/cli"
	"github.com/pthm/typecore/pkg/storage/postgres"
	"github.com/pthm/typecore/pkg/typesystem"
)

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current schema status",
	Long:  `Show the types currently declared in the backing store.`,
	Example: `  # Check status
  typecore status --db postgres://localhost/typecore`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(statusDB)
		if err != nil {
			return err
		}
		return runStatus(dsn)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "database URL")
}

func runStatus(dsn string) error {
	ctx := context.Background()
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
		return cli.GeneralError("loading schema", err)
	}

	fmt.Printf("entities:   %d\n", len(schema.GetKindTypes(engine.KindEntity)))
	fmt.Printf("relations:  %d\n", len(schema.GetKindTypes(engine.KindRelation)))
	fmt.Printf("attributes: %d\n", len(schema.GetKindTypes(engine.KindAttribute)))
	return nil
}
