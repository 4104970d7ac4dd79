// Package server exposes the CharmHealth API as an MCP tool catalog.
//
// Each tool maps to one or more authenticated API calls through the charm
// client. Handlers never surface a raw error to the MCP layer: every
// execution path yields a well-formed tool result, success or failure.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/charmhealth/charm-mcp/internal/charm"
	"github.com/charmhealth/charm-mcp/internal/telemetry"
)

// Transport names accepted by Start.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Server wraps an MCP server around the CharmHealth tool catalog.
type Server struct {
	client    *charm.Client
	logger    *charm.Logger
	tracker   telemetry.Tracker
	mcpServer *server.MCPServer
	transport string
	catalog   []catalogEntry
}

// catalogEntry pairs a registered tool with its wrapped handler so the
// console can invoke tools without a transport round trip.
type catalogEntry struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// Options configures a new Server.
type Options struct {
	Client    *charm.Client
	Logger    *charm.Logger
	Tracker   telemetry.Tracker
	Transport string
	Version   string
}

// New creates an MCP server with the full tool catalog registered.
func New(opts Options) (*Server, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("charm client is required")
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = telemetry.NoopTracker{}
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	mcpServer := server.NewMCPServer(
		"charmhealth-api-assistant",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s := &Server{
		client:    opts.Client,
		logger:    opts.Logger,
		tracker:   tracker,
		mcpServer: mcpServer,
		transport: opts.Transport,
	}

	s.registerTools()
	return s, nil
}

// registerTools installs the full catalog on the MCP server.
func (s *Server) registerTools() {
	s.registerPracticeTools()
	s.registerPatientTools()
	s.registerSchedulingTools()
	s.registerEncounterTools()
	s.registerClinicalTools()
	s.registerSupportTools()
}

// Start serves MCP over the configured transport until ctx is cancelled.
func (s *Server) Start(ctx context.Context, listenAddr string) error {
	switch s.transport {
	case TransportStdio:
		return server.ServeStdio(s.mcpServer)
	case TransportStreamableHTTP:
		httpServer := server.NewStreamableHTTPServer(
			s.mcpServer,
			server.WithEndpointPath("/mcp"),
		)

		mux := http.NewServeMux()
		mux.Handle("/mcp", httpServer)
		mux.HandleFunc("/health", s.handleHealth)

		srv := &http.Server{Addr: listenAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	default:
		return fmt.Errorf("unsupported server transport: %s", s.transport)
	}
}

// handleHealth reports process liveness for load balancers and probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
