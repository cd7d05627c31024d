package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kandev/agentfleet/internal/mcpserver"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve the MCP tools over stdin/stdout",
	Long: `Run agentfleet as a stdio MCP server for clients that launch their
tools as subprocesses. Logs go to stderr; stdout carries only MCP frames.
Running agents are stopped when the client disconnects.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.shutdown()

	err = mcpserver.ServeStdio(ctx, a.service, log, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
