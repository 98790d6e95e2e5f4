// Package server provides the MCP server exposing the Osmose frontend helpers.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmosemcp/pkg/tools"
	"github.com/NERVsystems/osmosemcp/pkg/version"
)

// ServerName is the name of the MCP server
const ServerName = "osmose-mcp-server"

// Server encapsulates the MCP server with the Osmose tools.
type Server struct {
	srv       *mcpserver.MCPServer
	registry  *tools.Registry
	logger    *slog.Logger
	doneCh    chan struct{}
	doneOnce  sync.Once
	running   bool
	mu        sync.Mutex
	ctxCancel context.CancelFunc
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(logger *slog.Logger, deps tools.Deps) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing Osmose MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	registry := tools.NewRegistry(logger, deps)
	registry.RegisterTools(srv)

	return &Server{
		srv:      srv,
		registry: registry,
		logger:   logger,
		doneCh:   make(chan struct{}),
	}, nil
}

// Run starts the MCP server using stdin/stdout for communication.
// This method blocks until the server is stopped or stdin is closed.
func (s *Server) Run() error {
	return s.RunWithContext(context.Background())
}

// RunWithContext serves stdio until ctx is done, Shutdown is called or stdin
// is closed.
func (s *Server) RunWithContext(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	ctx, cancel := context.WithCancel(ctx)
	s.ctxCancel = cancel
	s.mu.Unlock()

	defer s.doneOnce.Do(func() { close(s.doneCh) })
	defer cancel()

	stdio := mcpserver.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, in, out)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		s.logger.Info("stdio transport stopped")
		return nil
	}
	s.logger.Error("server error", "error", err)
	return err
}

// Shutdown initiates a graceful shutdown of the server.
// It does not block and returns immediately.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.ctxCancel != nil {
		s.ctxCancel()
	}
}

// WaitForShutdown blocks until the stdio loop has exited.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// GetMCPServer returns the underlying MCP server instance for HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// Tools returns the tool registry backing the server.
func (s *Server) Tools() *tools.Registry {
	return s.registry
}
