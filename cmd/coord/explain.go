package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/coordinatordb/coord/internal/rpc"
	"github.com/coordinatordb/coord/internal/ui"
)

var explainCmd = &cobra.Command{
	Use:   "explain TARGET",
	Short: "Describe a catalog object and its live frontier state",
	Long: `Report what the coordinator knows about a table, source, view, index, or
sink: its definition plus the since/upper frontiers the frontier tracker
currently holds for it. This is a catalog report, not a query plan — SQL
plan generation is out of scope (spec.md §1 Non-goals).`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().Bool("by-name", false, "TARGET is a database.schema.item name instead of an encoded id")
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	byName, _ := cmd.Flags().GetBool("by-name")
	req := &rpc.DescribeArgs{}
	if byName {
		req.Name = args[0]
	} else {
		req.ID = args[0]
	}

	reply, err := client.Describe(req)
	if err != nil {
		return err
	}

	md := explainMarkdown(reply)
	if !ui.ShouldUseColor() {
		fmt.Print(md)
		return nil
	}

	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func explainMarkdown(d *rpc.DescribeReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Name)
	fmt.Fprintf(&b, "- **id**: `%s`\n", d.ID)
	fmt.Fprintf(&b, "- **kind**: %s\n", d.Kind)
	if d.SQL != "" {
		fmt.Fprintf(&b, "\n```sql\n%s\n```\n\n", d.SQL)
	}

	switch d.Kind {
	case "source":
		fmt.Fprintf(&b, "- **connector**: %s\n", d.SourceConnector)
		fmt.Fprintf(&b, "- **caching enabled**: %t\n", d.CachingEnabled)
	case "view":
		fmt.Fprintf(&b, "- **materialized**: %t\n", d.Materialized)
	case "sink":
		fmt.Fprintf(&b, "- **from**: `%s`\n", d.SinkFrom)
		fmt.Fprintf(&b, "- **state**: %s\n", d.SinkState)
	case "index":
		fmt.Fprintf(&b, "- **on**: `%s`\n", d.IndexOn)
	}

	if d.Since != "" || d.Upper != "" {
		fmt.Fprintf(&b, "\n## Frontiers\n\n")
		fmt.Fprintf(&b, "- **since**: %s\n", d.Since)
		fmt.Fprintf(&b, "- **upper**: %s\n", d.Upper)
	}
	return b.String()
}
