package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/coordinatordb/coord/internal/config"
	"github.com/coordinatordb/coord/internal/rpc"
	"github.com/coordinatordb/coord/internal/ui"
)

// sqlCmd groups structured catalog operations under one namespace. It is
// not a SQL parser or shell — issuing statements and generating plans from
// them stays out of scope (spec.md §1 Non-goals) — each subcommand builds
// exactly one rpc.CreateXArgs/DropArgs/PeekArgs from flags and sends it to
// the running daemon, the same division of labor as the teacher's bd
// subcommands that each wrap one storage.Storage call.
var sqlCmd = &cobra.Command{
	Use:   "sql",
	Short: "Issue catalog operations against a running coordinator",
}

func init() {
	sqlCmd.PersistentFlags().String("database", "default", "database name")
	sqlCmd.PersistentFlags().String("schema", "public", "schema name")
	rootCmd.AddCommand(sqlCmd)

	sqlCmd.AddCommand(sqlCreateTableCmd, sqlCreateSourceCmd, sqlCreateViewCmd,
		sqlCreateIndexCmd, sqlCreateSinkCmd, sqlDropCmd, sqlPeekCmd)
}

func dialDaemon(cmd *cobra.Command) (*rpc.Client, error) {
	if err := initConfig(cmd); err != nil {
		return nil, err
	}
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	socketPath := rpc.ShortSocketPath(dataDir)
	client, err := rpc.TryConnect(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to coordinator at %s: %w", dataDir, err)
	}
	if client == nil {
		return nil, fmt.Errorf("no coordinator running against %s", dataDir)
	}
	return client, nil
}

func dbSchema(cmd *cobra.Command) (string, string) {
	db, _ := cmd.Flags().GetString("database")
	schema, _ := cmd.Flags().GetString("schema")
	return db, schema
}

func reportPlan(resp *rpc.Response, err error, verb, name string) error {
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Printf("%s %s %s\n", ui.RenderPass("✓"), verb, name)
	return nil
}

var sqlCreateTableCmd = &cobra.Command{
	Use:   "create-table NAME",
	Short: "Create a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		database, schema := dbSchema(cmd)
		ifNotExists, _ := cmd.Flags().GetBool("if-not-exists")
		resp, err := client.CreateTable(&rpc.CreateTableArgs{
			Database: database, Schema: schema, Name: args[0], IfNotExists: ifNotExists,
		})
		return reportPlan(resp, err, "created table", args[0])
	},
}

var sqlCreateSourceCmd = &cobra.Command{
	Use:   "create-source NAME",
	Short: "Create a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		database, schema := dbSchema(cmd)
		connector, _ := cmd.Flags().GetString("connector")
		caching := config.GetBool("caching-enabled-by-default")
		if f := cmd.Flags().Lookup("caching-enabled"); f.Changed {
			caching, _ = cmd.Flags().GetBool("caching-enabled")
		}
		ifNotExists, _ := cmd.Flags().GetBool("if-not-exists")
		resp, err := client.CreateSource(&rpc.CreateSourceArgs{
			Database: database, Schema: schema, Name: args[0],
			Connector: connector, CachingEnabled: caching, IfNotExists: ifNotExists,
		})
		return reportPlan(resp, err, "created source", args[0])
	},
}

var sqlCreateViewCmd = &cobra.Command{
	Use:   "create-view NAME",
	Short: "Create a view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		database, schema := dbSchema(cmd)
		materialized, _ := cmd.Flags().GetBool("materialized")
		exprRef, _ := cmd.Flags().GetString("expr-ref")
		uses, _ := cmd.Flags().GetStringSlice("uses")
		ifNotExists, _ := cmd.Flags().GetBool("if-not-exists")
		resp, err := client.CreateView(&rpc.CreateViewArgs{
			Database: database, Schema: schema, Name: args[0],
			Materialized: materialized, ExprRef: exprRef, Uses: uses, IfNotExists: ifNotExists,
		})
		return reportPlan(resp, err, "created view", args[0])
	},
}

var sqlCreateIndexCmd = &cobra.Command{
	Use:   "create-index NAME",
	Short: "Create an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		database, schema := dbSchema(cmd)
		on, _ := cmd.Flags().GetString("on")
		keys, _ := cmd.Flags().GetStringSlice("keys")
		ifNotExists, _ := cmd.Flags().GetBool("if-not-exists")
		resp, err := client.CreateIndex(&rpc.CreateIndexArgs{
			Database: database, Schema: schema, Name: args[0],
			On: on, Keys: keys, IfNotExists: ifNotExists,
		})
		return reportPlan(resp, err, "created index", args[0])
	},
}

var sqlCreateSinkCmd = &cobra.Command{
	Use:   "create-sink NAME",
	Short: "Create a sink",
	Long: `Create a sink. This blocks until the external sink builder collaborator
finishes constructing the connector (spec.md §4.7) — expect it to take
longer than the other create-* subcommands.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		client.SetTimeout(2 * time.Minute)

		database, schema := dbSchema(cmd)
		from, _ := cmd.Flags().GetString("from")
		connectorType, _ := cmd.Flags().GetString("connector-type")
		kind, _ := cmd.Flags().GetString("kind")
		configPairs, _ := cmd.Flags().GetStringToString("config")
		ifNotExists, _ := cmd.Flags().GetBool("if-not-exists")

		if configFile, _ := cmd.Flags().GetString("config-file"); configFile != "" {
			fileConfig, err := loadSinkConfigFile(configFile)
			if err != nil {
				return err
			}
			if configPairs == nil {
				configPairs = make(map[string]string, len(fileConfig))
			}
			for k, v := range fileConfig {
				configPairs[k] = v
			}
		}

		resp, err := client.CreateSink(&rpc.CreateSinkArgs{
			Database: database, Schema: schema, Name: args[0], From: from,
			ConnectorType: connectorType, Config: configPairs, Kind: kind, IfNotExists: ifNotExists,
		})
		return reportPlan(resp, err, "created sink", args[0])
	},
}

// loadSinkConfigFile reads connector config from a TOML file, the same
// structured-file-over-flags convenience the teacher offers for its own
// formula definitions (cmd/bd/formula.go's .formula.toml).
func loadSinkConfigFile(path string) (map[string]string, error) {
	var config map[string]string
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("decode sink config %s: %w", path, err)
	}
	return config, nil
}

var sqlDropCmd = &cobra.Command{
	Use:   "drop ID",
	Short: "Drop a catalog object by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		cascade, _ := cmd.Flags().GetBool("cascade")
		ifExists, _ := cmd.Flags().GetBool("if-exists")
		resp, err := client.Drop(&rpc.DropArgs{ID: args[0], Cascade: cascade, IfExists: ifExists})
		return reportPlan(resp, err, "dropped", args[0])
	},
}

var sqlPeekCmd = &cobra.Command{
	Use:   "peek TARGET",
	Short: "Read the current contents of a table, view, or index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		tx, _ := cmd.Flags().GetString("tx")
		peekArgs := &rpc.PeekArgs{ConnID: 1, Tx: tx, Target: args[0]}
		if asOf, _ := cmd.Flags().GetUint64("as-of"); cmd.Flags().Changed("as-of") {
			peekArgs.AsOf = &asOf
		}
		reply, err := client.Peek(peekArgs)
		if err != nil {
			return err
		}
		if reply.Error != "" {
			return fmt.Errorf("%s", reply.Error)
		}
		if reply.Canceled {
			fmt.Println(ui.RenderWarn("peek canceled"))
			return nil
		}
		for _, row := range reply.Rows {
			fmt.Println(row)
		}
		return nil
	},
}

func init() {
	sqlCreateTableCmd.Flags().Bool("if-not-exists", false, "no-op instead of erroring if the name already exists")

	sqlCreateSourceCmd.Flags().String("connector", "", "opaque connector descriptor")
	sqlCreateSourceCmd.Flags().Bool("caching-enabled", false, "track this source's cache file for reconciliation")
	sqlCreateSourceCmd.Flags().Bool("if-not-exists", false, "no-op instead of erroring if the name already exists")

	sqlCreateViewCmd.Flags().Bool("materialized", false, "maintain results incrementally instead of computing on read")
	sqlCreateViewCmd.Flags().String("expr-ref", "", "opaque reference to the view's compiled expression")
	sqlCreateViewCmd.Flags().StringSlice("uses", nil, "encoded ids of relations this view reads from")
	sqlCreateViewCmd.Flags().Bool("if-not-exists", false, "no-op instead of erroring if the name already exists")

	sqlCreateIndexCmd.Flags().String("on", "", "encoded id of the relation to index")
	sqlCreateIndexCmd.Flags().StringSlice("keys", nil, "opaque key expressions")
	sqlCreateIndexCmd.Flags().Bool("if-not-exists", false, "no-op instead of erroring if the name already exists")

	sqlCreateSinkCmd.Flags().String("from", "", "encoded id of the relation to sink")
	sqlCreateSinkCmd.Flags().String("connector-type", "", "sink connector type, e.g. kafka, file")
	sqlCreateSinkCmd.Flags().String("kind", "", "sink kind, e.g. changelog, snapshot")
	sqlCreateSinkCmd.Flags().StringToString("config", nil, "connector-specific key=value configuration")
	sqlCreateSinkCmd.Flags().String("config-file", "", "TOML file of connector config; merged over --config")
	sqlCreateSinkCmd.Flags().Bool("if-not-exists", false, "no-op instead of erroring if the name already exists")

	sqlDropCmd.Flags().Bool("cascade", false, "drop dependents too")
	sqlDropCmd.Flags().Bool("if-exists", false, "no-op instead of erroring if the id doesn't exist")

	sqlPeekCmd.Flags().String("tx", "", "opaque transaction token correlating this peek's response")
	sqlPeekCmd.Flags().Uint64("as-of", 0, "pin the read to this timestamp instead of the current moment")
}
