package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"repofs/internal/csvload"
)

var (
	configPath  string
	schemaName  string
	tableName   string
	createTable bool
	truncate    bool
)

var loadcsvCmd = &cobra.Command{
	Use:   "loadcsv <csv-file>",
	Short: "Load a consumer-complaint CSV export into PostgreSQL",
	Long: `Streams the rows of a consumer-complaint CSV export into a
PostgreSQL table using the COPY protocol. Connection settings are read
from a YAML config file.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoadCSV,
}

func init() {
	loadcsvCmd.Flags().StringVarP(&configPath, "config", "c", "loadcsv.yaml", "database config file")
	loadcsvCmd.Flags().StringVarP(&schemaName, "schema", "s", "public", "target schema")
	loadcsvCmd.Flags().StringVarP(&tableName, "table", "t", "consumer_complaints", "target table")
	loadcsvCmd.Flags().BoolVar(&createTable, "create-table", false, "create the table if it does not exist")
	loadcsvCmd.Flags().BoolVar(&truncate, "truncate", false, "empty the table before loading")
	rootCmd.AddCommand(loadcsvCmd)
}

func runLoadCSV(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := csvload.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	loader, err := csvload.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer loader.Close()

	if createTable {
		if err := loader.EnsureTable(ctx, schemaName, tableName); err != nil {
			return err
		}
	}
	if truncate {
		if err := loader.Truncate(ctx, schemaName, tableName); err != nil {
			return err
		}
	}

	copied, err := loader.Load(ctx, schemaName, tableName, args[0])
	if err != nil {
		return err
	}

	total, err := loader.Count(ctx, schemaName, tableName)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d rows into %s.%s (%d total)\n", copied, schemaName, tableName, total)
	return nil
}
