package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm/typecore/internal/cli"
	"github.com/pthm/typecore/internal/update"
)

var (
	cfg        *cli.Config
	configPath string

	cfgFile       string
	verbose       int
	quiet         bool
	noUpdateCheck bool

	updateResult chan *update.Info
)

var rootCmd = &cobra.Command{
	Use:   "typecore",
	Short: "Schema migration and health checks for a typecore deployment",
	Long: `typecore - operational CLI for a typecore deployment

Applies a schema manifest to a Postgres-backed store (C9) and runs
health checks against a live deployment (C10). It is not the query
wire protocol; that remains an external collaborator consuming
pkg/txn.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		if !noUpdateCheck && !isCI() {
			updateResult = make(chan *update.Info, 1)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				info, _ := update.CheckWithCache(ctx)
				updateResult <- info
			}()
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

const (
	groupSchema  = "schema"
	groupUtility = "utility"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover typecore.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase verbosity (can be repeated)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noUpdateCheck, "no-update-check", false, "disable update check")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupSchema, Title: "Schema:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	migrateCmd.GroupID = groupSchema
	statusCmd.GroupID = groupSchema
	doctorCmd.GroupID = groupSchema
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)

	configCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}

func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveBool(values ...bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}

func isCI() bool {
	return os.Getenv("CI") != ""
}

// ShowUpdateNoticeIfAvailable prints a pending update notice, if any.
// Called from main() since PersistentPostRun doesn't run when a
// command returns an error.
func ShowUpdateNoticeIfAvailable() {
	if updateResult == nil {
		return
	}
	select {
	case info := <-updateResult:
		if info != nil && info.UpdateAvailable {
			showUpdateNotice(info)
		}
	case <-time.After(1 * time.Second):
	}
}

func showUpdateNotice(info *update.Info) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "* A new version of typecore is available: v%s (current: %s)\n",
		info.LatestVersion, info.CurrentVersion)
	fmt.Fprintln(os.Stderr, "  go install github.com/pthm/typecore/cmd/typecore@latest")
}
