package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/charmhealth/charm-mcp/internal/charm"
	"github.com/charmhealth/charm-mcp/internal/server"
	"github.com/charmhealth/charm-mcp/internal/telemetry"
)

var (
	version string

	transport  string
	listenAddr string
	baseURL    string
	tokenURL   string
	timeout    time.Duration
	verbose    bool
	noColor    bool
	traceHTTP  bool
	repl       bool

	telemetryEnabled  bool
	telemetryInterval time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "charm-mcp",
	Short: "MCP server for the CharmHealth EHR API",
	Long: `charm-mcp exposes the CharmHealth EHR REST API as an MCP
(Model Context Protocol) tool catalog for AI assistants.

It manages the full OAuth2 access-token lifecycle against the CharmHealth
identity provider: tokens are obtained from the configured refresh token,
cached until shortly before expiry, and refreshed transparently when the
API rejects a call. Concurrent tool calls share a single refresh.

The tool catalog covers practice operations end to end: patient search and
demographics, appointment scheduling, encounter documentation and signing,
vitals, medications, allergies, diagnoses, clinical notes, recalls, lab
results, and patient files.

Transports:
- stdio (default): for AI assistant integration (Claude, Cursor)
- streamable-http: network transport with a /health endpoint for probes

Credentials are read from the CHARMHEALTH_* environment variables:
CHARMHEALTH_BASE_URL, CHARMHEALTH_TOKEN_URL, CHARMHEALTH_API_KEY,
CHARMHEALTH_REFRESH_TOKEN, CHARMHEALTH_CLIENT_ID,
CHARMHEALTH_CLIENT_SECRET, and CHARMHEALTH_REDIRECT_URI.

In console mode (--console), tools run interactively from a local shell
instead of over a transport. This is useful for verifying credentials and
exploring the catalog.`,
	RunE: runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.Flags().StringVar(&transport, "transport", server.TransportStdio, "Transport protocol for the MCP server (stdio, streamable-http)")
	rootCmd.Flags().StringVar(&listenAddr, "listen-addr", ":8000", "Listen address for streamable-http transport (path is fixed to /mcp)")
	rootCmd.Flags().StringVar(&baseURL, "base-url", "", "CharmHealth API base URL (defaults to CHARMHEALTH_BASE_URL)")
	rootCmd.Flags().StringVar(&tokenURL, "token-url", "", "OAuth token endpoint URL (defaults to CHARMHEALTH_TOKEN_URL)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout per outbound API call")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.Flags().BoolVar(&traceHTTP, "trace-http", false, "Log every outbound API request and response")
	rootCmd.Flags().BoolVar(&repl, "console", false, "Start the interactive console instead of serving a transport")

	rootCmd.Flags().BoolVar(&telemetryEnabled, "telemetry", false, "Enable OpenTelemetry metrics export")
	rootCmd.Flags().DurationVar(&telemetryInterval, "telemetry-interval", time.Minute, "Metrics export interval")

	rootCmd.AddCommand(newSelfUpdateCmd())
}

// validateTransport validates the transport configuration
func validateTransport() error {
	switch transport {
	case server.TransportStdio, server.TransportStreamableHTTP:
		return nil
	default:
		return fmt.Errorf("unsupported transport '%s' (use stdio or streamable-http)", transport)
	}
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if transport != server.TransportStdio {
			fmt.Println("\nReceived interrupt signal, shutting down gracefully...")
		}
		cancel()
	}()
}

// setupTelemetry wires the OTel tracker when enabled. The returned shutdown
// func flushes pending metrics; it is a no-op when telemetry is off.
func setupTelemetry(clientID string, logger *charm.Logger) (telemetry.Tracker, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !telemetryEnabled {
		return telemetry.NoopTracker{}, noop, nil
	}

	provider, shutdown, err := telemetry.Setup("charm-mcp", version, telemetryInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	tracker, err := telemetry.NewOTelTracker(provider, clientID)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, fmt.Errorf("failed to create telemetry tracker: %w", err)
	}

	logger.InfoVerbose("Telemetry enabled, export interval %v", telemetryInterval)
	return tracker, shutdown, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := validateTransport(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	setupSignalHandler(cancel)

	logger := charm.NewLogger(verbose, !noColor, traceHTTP)

	cfg := charm.Config{
		BaseURL:  baseURL,
		TokenURL: tokenURL,
		Timeout:  timeout,
	}.FromEnv()

	tracker, shutdownTelemetry, err := setupTelemetry(cfg.ClientID, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.WarningVerbose("Telemetry shutdown failed: %v", err)
		}
	}()

	client, err := charm.NewClient(charm.ClientOptions{
		Config:  cfg,
		Logger:  logger,
		Metrics: tracker,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Client:    client,
		Logger:    logger,
		Tracker:   tracker,
		Transport: transport,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if repl {
		console := server.NewConsole(srv, logger)
		if err := console.Run(ctx); err != nil {
			return fmt.Errorf("console error: %w", err)
		}
		return nil
	}

	logger.Info("Starting charm-mcp MCP server (transport: %s)...", transport)
	if transport == server.TransportStreamableHTTP {
		addr := listenAddr
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		logger.Info("Listening on %s%s", addr, "/mcp")
	}

	if err := srv.Start(ctx, listenAddr); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
