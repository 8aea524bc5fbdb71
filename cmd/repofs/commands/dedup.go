package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"repofs/internal/dedup"
)

var reportPath string

var dedupCmd = &cobra.Command{
	Use:   "dedup <directory>",
	Short: "Replace duplicate files with hard links",
	Long: `Scans the directory for files with identical content and replaces
duplicates with hard links to a single canonical copy. A report of
known content hashes is kept so repeat runs only examine files
modified since the previous scan.`,
	Args: cobra.ExactArgs(1),
	RunE: runDedup,
}

func init() {
	dedupCmd.Flags().StringVar(&reportPath, "report", "", "path to the scan report (default <directory>/.repofs-dedup.json)")
	rootCmd.AddCommand(dedupCmd)
}

func runDedup(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	report := reportPath
	if report == "" {
		report = filepath.Join(root, ".repofs-dedup.json")
	}

	store, err := dedup.NewStore(report)
	if err != nil {
		return err
	}

	stats, err := dedup.New(store).Run(root)
	if err != nil {
		return fmt.Errorf("deduplicating %s: %w", root, err)
	}
	fmt.Printf("scanned %d files, linked %d duplicates, skipped %d\n",
		stats.Scanned, stats.Linked, stats.Skipped)
	return nil
}
