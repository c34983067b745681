// Package tools provides the shared definitions for assistant tools: the
// Tool descriptor, schema generation from argument structs, argument
// decoding and the error kinds reported by dispatch.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Tool describes a callable tool.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// SchemaMap returns the input schema as a generic JSON object.
func (t Tool) SchemaMap() map[string]interface{} {
	out := map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	if t.InputSchema == nil {
		return out
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}

// ToolProvider is implemented by each tool module.
type ToolProvider interface {
	// Name returns the provider name (e.g., "files")
	Name() string

	// Tools returns all tools provided by this module
	Tools() []Tool

	// HasTool reports whether name is one of Tools()
	HasTool(name string) bool

	// Call executes a tool by name on behalf of a session.
	Call(ctx context.Context, sessionID, name string, args map[string]interface{}) (interface{}, error)
}

// GenerateSchema reflects a JSON schema for the argument struct T.
// Fields without omitempty are required.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	schema.ID = ""
	return schema
}

// --- Errors ---

// ErrorKind classifies dispatch failures.
type ErrorKind string

const (
	KindUnknownTool          ErrorKind = "unknown_tool"
	KindInvalidArgs          ErrorKind = "invalid_args"
	KindConfirmationRequired ErrorKind = "confirmation_required"
)

// ToolError is returned by dispatch. It is rendered to the user like any
// other result and never aborts a conversation.
type ToolError struct {
	Kind    ErrorKind
	Tool    string
	Message string

	// TotalRequested is set for KindConfirmationRequired.
	TotalRequested int
}

func (e *ToolError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("%s: %s", e.Tool, e.Message)
	}
	return e.Message
}

// Errorf builds a ToolError.
func Errorf(kind ErrorKind, tool, format string, args ...interface{}) *ToolError {
	return &ToolError{Kind: kind, Tool: tool, Message: fmt.Sprintf(format, args...)}
}

// UnknownTool builds the error for an unregistered tool name.
func UnknownTool(name string) *ToolError {
	return &ToolError{Kind: KindUnknownTool, Tool: name, Message: fmt.Sprintf("unknown tool: %s", name)}
}

// KindOf returns the kind of a ToolError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// --- Argument Decoding ---

// Validator is implemented by argument records that check their own shape.
type Validator interface {
	Validate() error
}

// DecodeArgs converts loosely typed model arguments into the record T and
// validates it. Type mismatches and failed validation are KindInvalidArgs.
func DecodeArgs[T any](tool string, args map[string]interface{}) (*T, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, Errorf(KindInvalidArgs, tool, "arguments are not JSON encodable: %v", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, Errorf(KindInvalidArgs, tool, "invalid arguments: %v", err)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, Errorf(KindInvalidArgs, tool, "%v", err)
		}
	}
	return &out, nil
}

// --- Response Helpers ---

// TextContent creates an MCP text content response
func TextContent(text string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": text,
			},
		},
	}
}
