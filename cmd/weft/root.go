package main

import (
	"fmt"
	"os"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft runs stateful graphs in checkpointed supersteps",
	Long: `weft executes graphs of nodes over a shared, reducer-merged state.
Every superstep is checkpointed, so threads can be resumed, inspected and forked.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default ./weft.yaml or ~/.config/weft/weft.yaml)")
	pf.String("demo", "router", "Graph to run (see 'weft demos')")
	pf.String("store", config.BackendFile, "Checkpoint store: memory, file, sqlite or redis")
	pf.String("store-path", "", "Directory (file) or database file (sqlite)")
	pf.String("redis-addr", "", "Redis address for the redis store")
	pf.String("redis-prefix", "", "Key prefix for the redis store")
	pf.Int("step-limit", 25, "Supersteps allowed per invocation (0 disables the ceiling)")
	pf.Duration("node-timeout", 0, "Default per-node timeout")
	pf.Int("max-concurrency", 0, "Nodes run at once within a superstep (0 is unlimited)")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("tools", "", "YAML or JSON file of allow-listed commands for the tools demo")
}

// loadApp reads the configuration and builds the engine for --demo.
func loadApp(cmd *cobra.Command, extra ...domain.LifecycleHooks) (*cli.App, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}
	name, _ := cmd.Flags().GetString("demo")
	return cli.NewApp(cfg, name, os.Stderr, extra...)
}
