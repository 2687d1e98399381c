package main

import (
	"fmt"

	"github.com/aretw0/weft/internal/demo"
	"github.com/spf13/cobra"
)

var demosCmd = &cobra.Command{
	Use:   "demos",
	Short: "List the built-in graphs",
	RunE: func(cmd *cobra.Command, args []string) error {
		demos, err := demo.Catalog()
		if err != nil {
			return err
		}
		for _, d := range demos {
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", d.Name, d.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demosCmd)
}
