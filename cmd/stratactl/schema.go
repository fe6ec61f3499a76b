package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/container"
	"github.com/strata-db/strata/internal/runtimeconfig"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and validate Strata schemas",
}

var schemaVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the schema version persisted in a data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath, _ := cmd.Flags().GetString("schema")
		sch, err := runtimeconfig.LoadSchema(schemaPath)
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

		v, err := c.SchemaVersion(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(v.String())
		return nil
	},
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a runtime configuration against a schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath, _ := cmd.Flags().GetString("schema")
		configPath, _ := cmd.Flags().GetString("config")

		sch, err := runtimeconfig.LoadSchema(schemaPath)
		if err != nil {
			return err
		}
		if _, err := runtimeconfig.LoadAndValidate(configPath, sch); err != nil {
			return err
		}

		fmt.Println("configuration is valid")
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaVersionCmd)
	schemaCmd.AddCommand(schemaValidateCmd)

	schemaVersionCmd.Flags().String("schema", "", "path to the schema YAML file (required)")
	_ = schemaVersionCmd.MarkFlagRequired("schema")

	schemaValidateCmd.Flags().String("schema", "", "path to the schema YAML file (required)")
	schemaValidateCmd.Flags().String("config", "", "path to the FDBConfiguration YAML file (required)")
	_ = schemaValidateCmd.MarkFlagRequired("schema")
	_ = schemaValidateCmd.MarkFlagRequired("config")
}
