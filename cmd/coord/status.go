package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coordinatordb/coord/internal/daemonctl"
	"github.com/coordinatordb/coord/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running coordinators",
	Long: `Show the coordinator registered against the current data directory, or
every coordinator known to the registry with --all.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("all", false, "show every registered coordinator, not just this data directory's")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if err := initConfig(cmd); err != nil {
		return err
	}
	showAll, _ := cmd.Flags().GetBool("all")

	if showAll {
		daemons, err := daemonctl.DiscoverDaemons()
		if err != nil {
			return fmt.Errorf("discover daemons: %w", err)
		}
		printDaemonTable(daemons)
		return nil
	}

	dataDir, err := resolveDataDir()
	if err != nil {
		return err
	}
	info, err := daemonctl.FindDaemonByDataDir(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s no coordinator running against %s\n", ui.RenderWarn("○"), dataDir)
		return nil
	}
	printDaemonTable([]daemonctl.DaemonInfo{*info})
	return nil
}

func printDaemonTable(daemons []daemonctl.DaemonInfo) {
	if len(daemons) == 0 {
		fmt.Println(ui.RenderMuted("no coordinators registered"))
		return
	}

	t := ui.NewStatusTable([]string{"STATUS", "DATA DIR", "PID", "VERSION", "UPTIME"})
	for _, d := range daemons {
		status := ui.RenderPass("alive")
		if !d.Alive {
			status = ui.RenderFail("down")
		}
		uptime := "-"
		if d.Alive {
			uptime = strconv.FormatFloat(d.UptimeSeconds, 'f', 0, 64) + "s"
		}
		t.Row(status, d.DataDir, strconv.Itoa(d.PID), d.Version, uptime)
	}
	fmt.Println(t.Render())
}
