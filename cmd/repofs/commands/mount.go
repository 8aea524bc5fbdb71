package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"repofs/internal/fs"
	"repofs/internal/stager"
)

var (
	stagingDir     string
	skipStage      bool
	readWriteStage bool
)

var mountCmd = &cobra.Command{
	Use:   "mount <repository-url> <mountpoint>",
	Short: "Stage a repository and mount it as a passthrough filesystem",
	Long: `Clones the repository into the staging directory, marks the checkout
read-only, and serves it at the mountpoint. The mount forwards every
filesystem operation to the staged checkout. Unmount with Ctrl-C or
fusermount -u.`,
	Args: cobra.ExactArgs(2),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().StringVar(&stagingDir, "staging-dir", defaultStagingDir(), "directory holding staged checkouts")
	mountCmd.Flags().BoolVar(&skipStage, "skip-stage", false, "mount an existing checkout without cloning")
	mountCmd.Flags().BoolVar(&readWriteStage, "read-write-stage", false, "leave the staged checkout writable")
	rootCmd.AddCommand(mountCmd)
}

func defaultStagingDir() string {
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "repofs", "staging")
	}
	return filepath.Join(os.TempDir(), "repofs-staging")
}

func runMount(cmd *cobra.Command, args []string) error {
	repoURL, mountPoint := args[0], args[1]

	st := stager.New(stagingDir)
	checkout := st.CheckoutPath(repoURL)

	if skipStage {
		if _, err := os.Stat(checkout); err != nil {
			return fmt.Errorf("no staged checkout at %s: %w", checkout, err)
		}
	} else {
		var err error
		if readWriteStage {
			checkout, err = st.StageWritable(cmd.Context(), repoURL)
		} else {
			checkout, err = st.Stage(cmd.Context(), repoURL)
		}
		if err != nil {
			return fmt.Errorf("staging %s: %w", repoURL, err)
		}
	}

	filesys, err := fs.NewRepoFS(checkout)
	if err != nil {
		return err
	}
	if err := filesys.Mount(mountPoint); err != nil {
		return fmt.Errorf("mounting at %s: %w", mountPoint, err)
	}
	log.Info().Str("checkout", checkout).Str("mountpoint", mountPoint).Msg("filesystem mounted")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- filesys.Wait() }()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("unmounting")
		if err := filesys.Unmount(mountPoint); err != nil {
			return fmt.Errorf("unmounting %s: %w", mountPoint, err)
		}
		return <-done
	case err := <-done:
		// Serve returned on its own, e.g. external fusermount -u.
		return err
	}
}
