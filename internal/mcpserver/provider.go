package mcpserver

import (
	"context"
	"sync"
	"time"

	"github.com/kandev/agentfleet/internal/api/service"
	"github.com/kandev/agentfleet/internal/common/logger"
)

const stopTimeout = 5 * time.Second

// Provide starts an MCP server for the serve command. The returned cleanup
// may be called more than once.
func Provide(ctx context.Context, cfg Config, svc *service.Service, log *logger.Logger) (*Server, func() error, error) {
	srv := New(cfg, svc, log)
	if err := srv.Start(ctx); err != nil {
		return nil, nil, err
	}
	stop := sync.OnceValue(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return srv.Stop(ctx)
	})
	return srv, stop, nil
}
