package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coordinatordb/coord/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a coordinator data directory",
	Long: `Create the data directory (catalog/, cache/, sinks/ subdirectories) and a
starter config.yaml, the way the teacher's bd init scaffolds a .beads/
directory on first use.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Int("num-workers", 1, "number of dataflow workers this coordinator expects to drive")
	initCmd.Flags().Bool("quiet", false, "skip the interactive setup wizard")
	rootCmd.AddCommand(initCmd)
}

type initOptions struct {
	NumWorkers              int  `yaml:"num-workers"`
	CompactionWindowMs      int  `yaml:"compaction-window-ms"`
	CachingEnabledByDefault bool `yaml:"caching-enabled-by-default"`
}

func runInit(cmd *cobra.Command, _ []string) error {
	dataDir, err := resolveDataDir()
	if err != nil {
		return err
	}
	if _, err := os.Stat(dataDir); err == nil {
		return fmt.Errorf("%s already exists; remove it first if you want to re-init", dataDir)
	}

	numWorkers, _ := cmd.Flags().GetInt("num-workers")
	quiet, _ := cmd.Flags().GetBool("quiet")
	opts := initOptions{NumWorkers: numWorkers, CompactionWindowMs: 1000}

	if !quiet && ui.IsTerminal() {
		if err := runInitWizard(&opts); err != nil {
			return fmt.Errorf("setup wizard: %w", err)
		}
	}

	for _, sub := range []string{"catalog", "cache", "sinks"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o750); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	configPath := filepath.Join(dataDir, "config.yaml")
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o640); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("%s initialized coordinator data directory at %s\n", ui.RenderPass("✓"), dataDir)
	fmt.Printf("  start it with: %s\n", ui.RenderAccent(fmt.Sprintf("coord start --data-dir %s", dataDir)))
	return nil
}

// runInitWizard walks the operator through the handful of choices that
// matter before the first `coord start`, in the teacher's huh.NewForm
// style (cmd/bd/init.go's interactive setup wizard).
func runInitWizard(opts *initOptions) error {
	numWorkers := fmt.Sprintf("%d", opts.NumWorkers)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Coordinator Setup").
				Description("Let's configure the new data directory before the daemon's first start."),
			huh.NewInput().
				Title("Number of workers").
				Description("How many dataflow workers will this coordinator drive?").
				Value(&numWorkers),
			huh.NewSelect[bool]().
				Title("Enable source caching by default?").
				Description("New CREATE SOURCE statements default to caching_enabled unless overridden.").
				Options(
					huh.NewOption("Yes", true),
					huh.NewOption("No", false),
				).
				Value(&opts.CachingEnabledByDefault),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	var n int
	if _, err := fmt.Sscanf(numWorkers, "%d", &n); err == nil && n > 0 {
		opts.NumWorkers = n
	}
	return nil
}
