package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/container"
	"github.com/strata-db/strata/internal/runtimeconfig"
	"github.com/strata-db/strata/internal/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to a data directory",
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Resolve and apply the migration path to a target version",
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath, _ := cmd.Flags().GetString("schema")
		registryPath, _ := cmd.Flags().GetString("registry")
		targetStr, _ := cmd.Flags().GetString("to")
		expectStages, _ := cmd.Flags().GetInt("expect-stages")

		sch, err := runtimeconfig.LoadSchema(schemaPath)
		if err != nil {
			return err
		}
		registry, err := runtimeconfig.LoadRegistry(registryPath)
		if err != nil {
			return err
		}
		target, err := parseVersion(targetStr)
		if err != nil {
			return err
		}

		dbPath, err := dataPath(cmd)
		if err != nil {
			return err
		}
		c, err := container.New(context.Background(), container.Config{DataPath: dbPath, Schema: sch})
		if err != nil {
			return fmt.Errorf("stratactl: open container: %w", err)
		}
		defer c.Close()

		if err := c.Migrate(context.Background(), registry, target, expectStages); err != nil {
			return fmt.Errorf("stratactl: migrate: %w", err)
		}

		fmt.Printf("migrated to %s\n", target)
		return nil
	},
}

func parseVersion(s string) (schema.Version, error) {
	var major, minor, patch int
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &major, &minor, &patch); err != nil {
		return schema.Version{}, fmt.Errorf("stratactl: invalid version %q (want major.minor.patch): %w", s, err)
	}
	return schema.Version{Major: major, Minor: minor, Patch: patch}, nil
}

func init() {
	migrateCmd.AddCommand(migrateApplyCmd)

	migrateApplyCmd.Flags().String("schema", "", "path to the schema YAML file (required)")
	migrateApplyCmd.Flags().String("registry", "", "path to the migration registry YAML file (required)")
	migrateApplyCmd.Flags().String("to", "", "target schema version, e.g. 1.2.0 (required)")
	migrateApplyCmd.Flags().Int("expect-stages", 0, "fail unless the resolved migration path has exactly this many stages")
	_ = migrateApplyCmd.MarkFlagRequired("schema")
	_ = migrateApplyCmd.MarkFlagRequired("registry")
	_ = migrateApplyCmd.MarkFlagRequired("to")
}
