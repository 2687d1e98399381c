package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/weft/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start weft as an MCP server",
	Long: `Starts weft as a Model Context Protocol server exposing the selected graph as tools.

Transports:
- stdio: reads requests on stdin and answers on stdout. Logs go to stderr.
- sse: serves Server-Sent Events over HTTP on --addr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		srv := mcp.NewServer(app.Engine, app.Logger)

		transport, _ := cmd.Flags().GetString("transport")
		switch transport {
		case "stdio":
			app.Logger.Info("starting MCP server", "transport", transport, "graph", app.Demo.Name)
			return srv.ServeStdio()
		case "sse":
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeSSE(ctx, app.Config.Server.Addr); err != nil {
				return err
			}
			app.Logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q (use stdio or sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol: stdio or sse")
	mcpCmd.Flags().String("addr", ":8080", "Address to listen on (sse only)")
}
