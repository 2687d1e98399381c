package main

import (
	"os"
	"strconv"

	"github.com/aretw0/weft/internal/cli"
	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage checkpointed threads",
	Long:  `List, inspect, fork and remove the threads stored by the configured checkpoint store.`,
}

var threadsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.ListThreads(cmd.Context(), app, os.Stdout)
	},
}

var threadsInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Show the latest checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		raw, _ := cmd.Flags().GetBool("raw")
		return cli.InspectThread(cmd.Context(), app, args[0], !raw && cli.IsTerminal(os.Stdout), os.Stdout)
	},
}

var threadsHistoryCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show every checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		diff, _ := cmd.Flags().GetBool("diff")
		return cli.PrintHistory(cmd.Context(), app, args[0], diff, os.Stdout)
	},
}

var threadsForkCmd = &cobra.Command{
	Use:   "fork <thread-id> <step> [new-thread-id]",
	Short: "Copy a thread up to a step into a new thread",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var dst string
		if len(args) == 3 {
			dst = args[2]
		}
		return cli.ForkThread(cmd.Context(), app, args[0], step, dst, os.Stdout)
	},
}

var threadsRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove threads and their subgraph threads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RemoveThreads(cmd.Context(), app, args, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(threadsCmd)
	threadsCmd.AddCommand(threadsLsCmd, threadsInspectCmd, threadsHistoryCmd, threadsForkCmd, threadsRmCmd)

	threadsInspectCmd.Flags().Bool("raw", false, "Print YAML even on a terminal")
	threadsHistoryCmd.Flags().Bool("diff", false, "Print the changes between checkpoints")
}
