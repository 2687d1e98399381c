package main

import (
	"os"

	"github.com/aretw0/weft/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the graph structure",
	Long:  `Outputs the selected graph as a Mermaid diagram (graph TD), JSON or YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		format, _ := cmd.Flags().GetString("format")
		thread, _ := cmd.Flags().GetString("thread")
		return cli.PrintGraph(cmd.Context(), app, format, thread, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "o", "mermaid", "Output format: mermaid, json or yaml")
	graphCmd.Flags().String("thread", "", "Overlay the progress of this thread on the diagram")
}
