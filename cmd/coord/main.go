// Command coord is the coordinator's CLI and daemon entry point, grounded
// on the teacher's cmd/bd layout: one cobra command per operation, a
// package-level rootCmd that subcommands register themselves onto from
// their own init(), and a thin main() that just calls Execute.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coordinatordb/coord/internal/rpc"
)

// Version is set at build time via -ldflags, mirroring the teacher's own
// Version var in cmd/bd.
var Version = "0.0.0"

func init() {
	rpc.ClientVersion = Version
}

var rootCmd = &cobra.Command{
	Use:   "coord",
	Short: "Coordinator: timestamp, frontier, and catalog lifecycle daemon",
	Long: `coord runs and talks to the coordinator daemon: the single-writer
process that assigns read/write timestamps, tracks per-arrangement
compaction frontiers, and sequences catalog/dataflow lifecycle changes for
a streaming database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "coordinator data directory (default: .coord in the current directory tree)")
	rootCmd.PersistentFlags().String("socket-path", "", "override the coordinator's Unix socket path")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
