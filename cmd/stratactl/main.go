package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/internal/rlog"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "stratactl",
	Short:   "stratactl operates a Strata data directory",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("stratactl version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./strata-data", "Data directory holding the bbolt file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	rlog.Init(rlog.Config{Level: rlog.Level(level), JSONOutput: jsonOut})
}

func dataPath(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stratactl: create data dir %s: %w", dir, err)
	}
	return dir + "/strata.db", nil
}
