// Package mcpserver exposes the agent service as MCP tools over SSE,
// Streamable HTTP and stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/api/service"
	"github.com/kandev/agentfleet/internal/common/logger"
)

const (
	serverName    = "agentfleet"
	serverVersion = "1.0.0"

	ssePath        = "/sse"
	messagePath    = "/message"
	streamablePath = "/mcp"
)

// Config holds the MCP listener address.
type Config struct {
	Host string
	Port int // 0 picks a free port
}

// Server serves the agent tools to HTTP MCP clients. Orchestrating agents
// that speak SSE connect on /sse, Streamable HTTP clients on /mcp.
type Server struct {
	cfg        Config
	sse        *server.SSEServer
	streamable *server.StreamableHTTPServer
	http       *http.Server
	logger     *logger.Logger

	mu   sync.Mutex
	addr net.Addr
}

// New creates an MCP server over svc. Nothing listens until Start.
func New(cfg Config, svc *service.Service, log *logger.Logger) *Server {
	log = log.WithComponent("mcp-server")
	tools := NewMCPServer(svc, log)
	s := &Server{
		cfg:        cfg,
		sse:        server.NewSSEServer(tools),
		streamable: server.NewStreamableHTTPServer(tools, server.WithEndpointPath(streamablePath)),
		logger:     log,
	}

	mux := http.NewServeMux()
	mux.Handle(ssePath, s.sse.SSEHandler())
	mux.Handle(messagePath, s.sse.MessageHandler())
	mux.Handle(streamablePath, s.streamable)
	s.http = &http.Server{Handler: mux}
	return s
}

// NewMCPServer builds the tool server shared by every transport.
func NewMCPServer(svc *service.Service, log *logger.Logger) *server.MCPServer {
	tools := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	registerTools(tools, svc, log)
	return tools
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != nil {
		return fmt.Errorf("MCP server already listening on %s", s.addr)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen for MCP clients: %w", err)
	}
	s.addr = ln.Addr()

	s.logger.Info("MCP server listening",
		zap.String("addr", s.addr.String()),
		zap.String("sse", ssePath),
		zap.String("streamable_http", streamablePath))
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("MCP server stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Stop closes the listener and both transports' sessions.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.addr != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown MCP listener: %w", err)
	}
	return errors.Join(s.sse.Shutdown(ctx), s.streamable.Shutdown(ctx))
}

// Port returns the bound port, or the configured one before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.cfg.Port
}

func (s *Server) SSEEndpoint() string {
	return s.endpoint(ssePath)
}

func (s *Server) StreamableHTTPEndpoint() string {
	return s.endpoint(streamablePath)
}

func (s *Server) endpoint(path string) string {
	return "http://" + net.JoinHostPort("localhost", strconv.Itoa(s.Port())) + path
}

// ServeStdio serves the tools on in/out until ctx is done or in closes.
// Nothing else may write to out while it runs.
func ServeStdio(ctx context.Context, svc *service.Service, log *logger.Logger, in io.Reader, out io.Writer) error {
	log = log.WithComponent("mcp-server")
	log.Info("MCP server serving on stdio")
	return server.NewStdioServer(NewMCPServer(svc, log)).Listen(ctx, in, out)
}
