package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [thread-id]",
	Short: "Run the selected graph on a thread",
	Long: `Runs the graph selected with --demo until it completes, printing each superstep.
Re-running an existing thread with --input starts a new turn over its state;
without --input a completed thread is printed as is and a pending one resumes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.RunOptions{}
		if len(args) > 0 {
			opts.ThreadID = args[0]
		}
		opts.Input, _ = cmd.Flags().GetString("input")
		opts.Format, _ = cmd.Flags().GetString("format")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")

		if opts.Format == cli.FormatText && !opts.Quiet && cli.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return cli.Run(ctx, app, opts, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("input", "", "JSON object merged into the thread before running")
	runCmd.Flags().StringP("format", "o", cli.FormatText, "Output format: text, json (NDJSON observations) or yaml")
	runCmd.Flags().Bool("fresh", false, "Delete the thread before running")
	runCmd.Flags().BoolP("quiet", "q", false, "Print only the final values")
}
