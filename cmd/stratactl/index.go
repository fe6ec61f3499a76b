package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strata-db/strata/container"
	"github.com/strata-db/strata/internal/runtimeconfig"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect index state",
}

var indexStatusCmd = &cobra.Command{
	Use:   "status NAME",
	Short: "Print a registered index's persisted state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
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

		state, err := c.IndexState(context.Background(), name)
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexStatusCmd)
	indexStatusCmd.Flags().String("schema", "", "path to the schema YAML file (required)")
	_ = indexStatusCmd.MarkFlagRequired("schema")
}
