// Package mcptools exposes the External Command Surface's verb set (§6.1)
// as MCP tools over SSE and Streamable HTTP transports, so an MCP-capable
// agent can drive Competition/Ensemble/Debate runs and the Task Analyzer
// directly, without going through the HTTP+WebSocket API.
package mcptools

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ait42/orchestrator/internal/analyzer"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/registry"
)

// Config holds the MCP server configuration.
type Config struct {
	// Port to listen on.
	Port int
	// WorkingDir is the directory the getWorkspace tool reports on.
	WorkingDir string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Port: 9090, WorkingDir: "."}
}

// Server wraps the SSE and Streamable HTTP transports with lifecycle
// management. Unlike an HTTP-bridged tool server, every tool handler here
// calls straight into the Registry/Analyzer in-process.
type Server struct {
	cfg                  Config
	registry             *registry.Registry
	analyzer             *analyzer.Analyzer
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	httpServer           *http.Server
	mu                   sync.Mutex
	running              bool
	logger               *logger.Logger
}

// New creates a new MCP tool server bound to reg and az.
func New(cfg Config, reg *registry.Registry, az *analyzer.Analyzer, log *logger.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		analyzer: az,
		logger:   log.WithFields(zap.String("component", "mcp-tools")),
	}
}

// Start starts the MCP server in a goroutine and returns when it's listening.
// It starts both SSE and Streamable HTTP transports on the same port.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	mcpServer := server.NewMCPServer(
		"orchestrator-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	registerTools(mcpServer, s.registry, s.analyzer, s.cfg.WorkingDir, s.logger)

	s.sseServer = server.NewSSEServer(mcpServer)
	s.streamableHTTPServer = server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
	)

	mux := http.NewServeMux()
	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())
	mux.Handle("/mcp", s.streamableHTTPServer)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.cfg.Port = tcpAddr.Port
	}

	s.httpServer = &http.Server{Handler: mux}

	ready := make(chan struct{})

	go func() {
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()

		close(ready)

		s.logger.Info("mcp tool server listening",
			zap.Int("port", s.cfg.Port),
			zap.String("sse_endpoint", "/sse"),
			zap.String("streamable_http_endpoint", "/mcp"))

		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("mcp tool server error", zap.Error(err))
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
	}
	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to shutdown sse server", zap.Error(err))
		}
	}
	if s.streamableHTTPServer != nil {
		if err := s.streamableHTTPServer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to shutdown streamable http server", zap.Error(err))
		}
	}
	return nil
}
