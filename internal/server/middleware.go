package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/charmhealth/charm-mcp/internal/charm"
	"github.com/charmhealth/charm-mcp/internal/telemetry"
)

// toolFailure is the structured error payload returned to the agent when a
// tool cannot complete. Kind mirrors the client error taxonomy.
type toolFailure struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Status int    `json:"status,omitempty"`
}

// wrap decorates a tool handler with invocation tracking, panic recovery,
// and error translation. No error escapes to the MCP layer: a handler
// failure becomes a structured tool result with IsError set.
func (s *Server) wrap(name string, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, _ error) {
		inv := s.tracker.StartInvocation(ctx, name)

		var handlerErr error
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Tool %s panicked: %v", name, r)
				result = toolError(fmt.Errorf("internal error in %s: %v", name, r))
				handlerErr = fmt.Errorf("panic: %v", r)
			}
			outcome := telemetry.OutcomeFromError(handlerErr)
			detail := ""
			if handlerErr != nil {
				detail = handlerErr.Error()
			} else if result != nil && result.IsError {
				outcome = telemetry.OutcomeClientError
			}
			s.tracker.EndInvocation(ctx, inv, outcome, detail)
		}()

		result, handlerErr = handler(ctx, request)
		if handlerErr != nil {
			s.logger.WarningVerbose("Tool %s failed: %v", name, handlerErr)
			return toolError(handlerErr), nil
		}
		return result, nil
	}
}

// addTool registers a tool with the standard middleware applied and
// records it in the local catalog for the console.
func (s *Server) addTool(tool mcp.Tool, handler mcpserver.ToolHandlerFunc) {
	wrapped := s.wrap(tool.Name, handler)
	s.mcpServer.AddTool(tool, wrapped)
	s.catalog = append(s.catalog, catalogEntry{tool: tool, handler: wrapped})
}

// toolError converts a client error into the outward-facing failure shape.
func toolError(err error) *mcp.CallToolResult {
	failure := toolFailure{Error: err.Error(), Kind: errorKind(err)}

	var (
		providerErr *charm.AuthProviderError
		authErr     *charm.AuthError
		clientErr   *charm.ClientError
		serverErr   *charm.ServerError
		protoErr    *charm.ProtocolError
	)
	switch {
	case errors.As(err, &providerErr):
		failure.Status = providerErr.Status
	case errors.As(err, &authErr):
		failure.Status = authErr.Status
	case errors.As(err, &clientErr):
		failure.Status = clientErr.Status
	case errors.As(err, &serverErr):
		failure.Status = serverErr.Status
	case errors.As(err, &protoErr):
		failure.Status = protoErr.Status
	}

	payload, merr := json.Marshal(failure)
	if merr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(payload))
}

func errorKind(err error) string {
	var (
		providerErr *charm.AuthProviderError
		authErr     *charm.AuthError
		clientErr   *charm.ClientError
		serverErr   *charm.ServerError
		protoErr    *charm.ProtocolError
		transport   *charm.TransportError
	)
	switch {
	case errors.As(err, &providerErr):
		return "auth_provider_error"
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &clientErr):
		return "client_error"
	case errors.As(err, &serverErr):
		return "server_error"
	case errors.As(err, &protoErr):
		return "protocol_error"
	case errors.As(err, &transport):
		return "transport_error"
	default:
		return "internal_error"
	}
}
