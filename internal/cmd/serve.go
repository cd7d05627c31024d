package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/api/handlers"
	gateway "github.com/kandev/agentfleet/internal/gateway/websocket"
	"github.com/kandev/agentfleet/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API, WebSocket events and MCP endpoints",
	Long: `Start the HTTP server with the agent REST API under /api/v1, the
lifecycle event stream on /ws/events and, unless disabled, the MCP tools over
SSE (/sse) and Streamable HTTP (/mcp) on the MCP port.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	router := handlers.NewRouter(a.service, log, cfg.Logging.Level == "debug")

	gw, err := gateway.NewGateway(a.bus, log)
	if err != nil {
		a.shutdown()
		return err
	}
	gw.SetupRoutes(router)
	go gw.Run(ctx)
	a.cleanups = append(a.cleanups, gw.Close)

	if cfg.MCP.Enabled {
		mcpSrv, stopMCP, err := mcpserver.Provide(ctx, mcpserver.Config{Host: cfg.Server.Host, Port: cfg.MCP.Port}, a.service, log)
		if err != nil {
			a.shutdown()
			return err
		}
		a.cleanups = append(a.cleanups, stopMCP)
		log.Info("MCP endpoints ready",
			zap.String("sse", mcpSrv.SSEEndpoint()),
			zap.String("streamable_http", mcpSrv.StreamableHTTPEndpoint()))
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			zap.String("addr", server.Addr),
			zap.String("health", "/health"),
			zap.String("events", "/ws/events"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	err = waitForShutdown(ctx, serveErr)
	if err != nil {
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down agentfleet...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	cancel()
	a.shutdown()
	log.Info("agentfleet stopped")
	return err
}

// waitForShutdown blocks until SIGINT/SIGTERM, ctx cancellation or a server error.
func waitForShutdown(ctx context.Context, serveErr <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		return nil
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return err
	}
}
