package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/charmhealth/charm-mcp/internal/charm"
)

// errExit is a sentinel error used to signal console exit
var errExit = errors.New("exit")

// Console is an interactive shell over the local tool catalog. It calls
// tool handlers directly, so every invocation exercises the same
// middleware and API client the MCP transports use.
type Console struct {
	server          *Server
	logger          *charm.Logger
	rl              *readline.Instance
	commandHandlers map[string]commandHandler
}

// NewConsole creates a console bound to the server's tool catalog.
func NewConsole(srv *Server, logger *charm.Logger) *Console {
	c := &Console{
		server: srv,
		logger: logger,
	}
	c.commandHandlers = c.buildCommandHandlers()
	return c
}

// Run starts the console loop and blocks until exit or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	completer := c.createCompleter()
	historyFile := filepath.Join(os.TempDir(), ".charm_mcp_history")

	config := &readline.Config{
		Prompt:          "charm> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer func() { _ = rl.Close() }()
	c.rl = rl

	c.logger.Info("CharmHealth console started. Type 'help' for available commands. Use TAB for completion.")
	fmt.Println()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Console shutting down...")
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			c.logger.Info("Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := c.executeCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				c.logger.Info("Goodbye!")
				return nil
			}
			c.logger.Error("Error: %v", err)
		}

		fmt.Println()
	}
}

// toolNames returns the catalog tool names for tab completion
func (c *Console) toolNames() []string {
	names := make([]string, len(c.server.catalog))
	for i, entry := range c.server.catalog {
		names[i] = entry.tool.Name
	}
	return names
}

// buildPcItems converts a slice of strings to readline completer items
func buildPcItems(names []string) []readline.PrefixCompleterInterface {
	items := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		items[i] = readline.PcItem(name)
	}
	return items
}

// createCompleter creates the tab completion configuration
func (c *Console) createCompleter() *readline.PrefixCompleter {
	toolCompleter := buildPcItems(c.toolNames())

	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("list", readline.PcItem("tools")),
		readline.PcItem("describe", toolCompleter...),
		readline.PcItem("call", toolCompleter...),
		readline.PcItem("verbose",
			readline.PcItem("on"),
			readline.PcItem("off"),
		),
	}

	return readline.NewPrefixCompleter(items...)
}

// filterInput filters input characters for readline
func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// commandHandler defines a console command with its handler and argument requirements
type commandHandler struct {
	minArgs int
	usage   string
	handler func(ctx context.Context, parts []string) error
}

// buildCommandHandlers creates the map of command handlers
func (c *Console) buildCommandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"help": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return c.showHelp()
		}},
		"?": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return c.showHelp()
		}},
		"exit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"quit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"list": {
			minArgs: 1,
			handler: func(ctx context.Context, parts []string) error {
				return c.listTools()
			},
		},
		"describe": {
			minArgs: 2,
			usage:   "usage: describe <tool-name>",
			handler: func(ctx context.Context, parts []string) error {
				return c.describeTool(parts[1])
			},
		},
		"call": {
			minArgs: 2,
			usage:   "usage: call <tool-name> [json-args]",
			handler: func(ctx context.Context, parts []string) error {
				return c.handleCallTool(ctx, parts[1], strings.Join(parts[2:], " "))
			},
		},
		"verbose": {
			minArgs: 2,
			usage:   "usage: verbose <on|off>",
			handler: func(ctx context.Context, parts []string) error {
				return c.handleVerbose(parts[1])
			},
		},
	}
}

// executeCommand parses and executes a command
func (c *Console) executeCommand(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])

	handler, exists := c.commandHandlers[command]
	if !exists {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", command)
	}

	if len(parts) < handler.minArgs {
		return errors.New(handler.usage)
	}

	return handler.handler(ctx, parts)
}

// showHelp displays available commands
func (c *Console) showHelp() error {
	fmt.Println("Available commands:")
	fmt.Println("  help, ?                      - Show this help message")
	fmt.Println("  list                         - List all available tools")
	fmt.Println("  describe <tool>              - Show a tool's description and input schema")
	fmt.Println("  call <tool> {json}           - Execute a tool with JSON arguments")
	fmt.Println("  verbose <on|off>             - Enable/disable verbose logging")
	fmt.Println("  exit, quit                   - Exit the console")
	fmt.Println()
	fmt.Println("Keyboard shortcuts:")
	fmt.Println("  TAB                          - Auto-complete commands and tool names")
	fmt.Println("  ↑/↓ (arrow keys)             - Navigate command history")
	fmt.Println("  Ctrl+R                       - Search command history")
	fmt.Println("  Ctrl+C                       - Cancel current line")
	fmt.Println("  Ctrl+D                       - Exit console")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  call find_patients {\"search_type\": \"name\", \"search_value\": \"Smith\"}")
	fmt.Println("  call get_patient_details {\"patient_id\": \"100001\"}")
	fmt.Println("  call manage_appointments {\"action\": \"list\", \"start_date\": \"2026-01-01\", \"end_date\": \"2026-01-31\", \"facility_ids\": \"ALL\"}")
	return nil
}

// listTools displays the tool catalog
func (c *Console) listTools() error {
	if len(c.server.catalog) == 0 {
		fmt.Println("No tools available.")
		return nil
	}

	fmt.Printf("Available tools (%d):\n", len(c.server.catalog))
	for i, entry := range c.server.catalog {
		desc := entry.tool.Description
		if idx := strings.IndexByte(desc, '.'); idx > 0 {
			desc = desc[:idx+1]
		}
		fmt.Printf("  %d. %-28s - %s\n", i+1, entry.tool.Name, desc)
	}
	return nil
}

// findTool finds a catalog entry by tool name
func (c *Console) findTool(name string) *catalogEntry {
	for i := range c.server.catalog {
		if c.server.catalog[i].tool.Name == name {
			return &c.server.catalog[i]
		}
	}
	return nil
}

// describeTool shows detailed information about a tool
func (c *Console) describeTool(name string) error {
	entry := c.findTool(name)
	if entry == nil {
		return fmt.Errorf("tool not found: %s", name)
	}

	fmt.Printf("Tool: %s\n", entry.tool.Name)
	fmt.Printf("Description: %s\n", entry.tool.Description)
	fmt.Println("Input Schema:")
	fmt.Printf("%s\n", prettyJSON(entry.tool.InputSchema))
	return nil
}

// handleVerbose toggles verbose logging
func (c *Console) handleVerbose(setting string) error {
	switch strings.ToLower(setting) {
	case "on":
		c.logger.SetVerbose(true)
		fmt.Println("Verbose logging enabled")
	case "off":
		c.logger.SetVerbose(false)
		fmt.Println("Verbose logging disabled")
	default:
		return fmt.Errorf("invalid setting: %s. Use 'on' or 'off'", setting)
	}
	return nil
}

// handleCallTool executes a catalog tool with the given arguments
func (c *Console) handleCallTool(ctx context.Context, toolName string, argsStr string) error {
	entry := c.findTool(toolName)
	if entry == nil {
		return fmt.Errorf("tool not found: %s", toolName)
	}

	args, err := parseToolArgs(argsStr, toolName)
	if err != nil {
		return err
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = toolName
	request.Params.Arguments = args

	fmt.Printf("Executing tool: %s...\n", toolName)
	result, err := entry.handler(ctx, request)
	if err != nil {
		return fmt.Errorf("tool execution failed: %w", err)
	}

	displayToolResult(result)
	return nil
}
