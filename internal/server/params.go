package server

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

// arguments extracts the tool call arguments as a map. A missing or
// malformed arguments object yields an empty map, never a failure:
// required-argument checks happen per field.
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg returns a string argument, or "" when absent.
func stringArg(args map[string]interface{}, key string) string {
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return v
}

// requireString returns a string argument or an error naming the field.
func requireString(args map[string]interface{}, key string) (string, error) {
	v := stringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("missing or invalid '%s' argument", key)
	}
	return v, nil
}

// argValue formats a single argument for the query string. JSON numbers
// arrive as float64; integral values are rendered without a decimal point.
func argValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// queryFromArgs builds query parameters from the named arguments, skipping
// absent ones.
func queryFromArgs(args map[string]interface{}, keys ...string) url.Values {
	query := url.Values{}
	for _, key := range keys {
		if v, ok := args[key]; ok && v != nil {
			query.Set(key, argValue(v))
		}
	}
	return query
}

// payloadFromArgs builds a JSON payload from all present arguments except
// the excluded ones (typically path components like patient_id).
func payloadFromArgs(args map[string]interface{}, exclude ...string) map[string]interface{} {
	skip := make(map[string]bool, len(exclude))
	for _, key := range exclude {
		skip[key] = true
	}
	payload := map[string]interface{}{}
	for key, v := range args {
		if v == nil || skip[key] {
			continue
		}
		payload[key] = v
	}
	return payload
}
