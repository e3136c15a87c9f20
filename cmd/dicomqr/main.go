// dicomqr is a DICOM query/retrieve tool: verify connectivity, search a
// remote archive, and pull studies down as Part 10 files.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pacsops/dicomqr/client"
	"github.com/pacsops/dicomqr/registry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dicomqr",
		Short: "DICOM query/retrieve client",
		Long: `dicomqr talks DIMSE to a configured DICOM node: C-ECHO verification,
C-FIND queries at patient/study/series/instance level, C-MOVE retrieves, and
a standalone store SCP for receiving instances.

Nodes live in a YAML registry file (see the node subcommand); the active node
and calling AE title are used by every other command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "registry file (default $DICOMQR_CONFIG or the user config dir)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newSCPCmd())
	rootCmd.AddCommand(newNodeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadRegistry resolves the registry path: --config beats DICOMQR_CONFIG
// beats the per-user default.
func loadRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	path, _ := cmd.Flags().GetString("config")
	overrides, err := registry.OverridesFromEnv()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = overrides.ConfigPath
	}
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(dir, "dicomqr", "nodes.yaml")
	}
	return registry.Load(path)
}

// openCurrent opens an association to the registry's active node using the
// active calling AE title.
func openCurrent(cmd *cobra.Command, reg *registry.Registry, contexts []string) (*client.Association, error) {
	_, node := reg.Current()
	_, callingAET := reg.CurrentCallingAET()
	return client.Open(node.Address(), client.Config{
		CallingAETitle:    callingAET,
		CalledAETitle:     node.AETitle,
		RequestedContexts: contexts,
		Logger:            setupLogging(cmd),
	})
}
