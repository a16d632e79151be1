package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coordinatordb/coord/internal/daemonctl"
	"github.com/coordinatordb/coord/internal/ui"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the coordinator running against this data directory",
	RunE:  runShutdown,
}

func init() {
	shutdownCmd.Flags().Bool("force", false, "if the stop sequence (RPC, SIGTERM, then SIGKILL) still fails, send one more SIGKILL and count the coordinator as stopped once it is delivered")
	rootCmd.AddCommand(shutdownCmd)
}

func runShutdown(cmd *cobra.Command, _ []string) error {
	if err := initConfig(cmd); err != nil {
		return err
	}
	dataDir, err := resolveDataDir()
	if err != nil {
		return err
	}

	info, err := daemonctl.FindDaemonByDataDir(dataDir)
	if err != nil {
		return fmt.Errorf("no coordinator running against %s", dataDir)
	}

	force, _ := cmd.Flags().GetBool("force")
	results := daemonctl.KillAllDaemons([]daemonctl.DaemonInfo{*info}, force)
	if results.Failed > 0 {
		return fmt.Errorf("failed to stop coordinator at %s: %s", dataDir, results.Failures[0].Error)
	}
	fmt.Printf("%s stopped coordinator at %s\n", ui.RenderPass("✓"), dataDir)
	return nil
}
