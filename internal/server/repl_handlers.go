package server

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// parseToolArgs parses JSON arguments for a tool call
func parseToolArgs(argsStr string, toolName string) (map[string]interface{}, error) {
	if argsStr == "" {
		return nil, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
		fmt.Println("Error: Arguments must be valid JSON")
		fmt.Printf("Example: call %s {\"param1\": \"value1\", \"param2\": 123}\n", toolName)
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}

// prettyJSON renders a value as indented JSON for console display
func prettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// displayTextContent displays text content, pretty-printing JSON if possible
func displayTextContent(text string) {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(text), &jsonData); err == nil {
		fmt.Println(prettyJSON(jsonData))
	} else {
		fmt.Println(text)
	}
}

// displayToolResult displays the result of a tool call
func displayToolResult(result *mcp.CallToolResult) {
	if result == nil {
		fmt.Println("(no result)")
		return
	}

	if result.IsError {
		fmt.Println("Tool returned an error:")
		for _, content := range result.Content {
			if textContent, ok := mcp.AsTextContent(content); ok {
				fmt.Printf("  %s\n", textContent.Text)
			}
		}
		return
	}

	fmt.Println("Result:")
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			displayTextContent(textContent.Text)
		}
	}
}
