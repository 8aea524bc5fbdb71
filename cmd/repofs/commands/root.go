// Package commands implements the repofs command line interface.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"repofs/internal/logging"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "repofs",
	Short: "Read-only repository filesystem tools",
	Long: `repofs stages a git repository checkout and exposes it through a
passthrough FUSE filesystem, along with maintenance tools for the
staging area.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetDebug()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

var log = logging.New("cli")
