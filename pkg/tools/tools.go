package tools

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/knosphere/backend/pkg/ai"
)

// Registry collects the tools exposed to the workflow. Tools are opaque to
// the orchestrator: it only sees name, description, schema and handler.
type Registry struct {
	tools []ai.Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a tool. Later registrations with the same name are ignored.
func (r *Registry) Register(tool ai.Tool) {
	for _, existing := range r.tools {
		if existing.Name == tool.Name {
			return
		}
	}
	r.tools = append(r.tools, tool)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []ai.Tool {
	return append([]ai.Tool(nil), r.tools...)
}

// DefaultRegistry registers the built-in tool set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCalculatorTool())
	r.Register(NewCurrentTimeTool())
	r.Register(NewWeatherTool())
	r.Register(NewWebSearchTool())
	r.Register(NewWebFetchTool())
	return r
}

// httpClient is shared by the network-backed tools.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// mustSchema reflects a JSON schema for a tool argument struct. Argument
// types are package-internal, so a reflection failure is a programming
// error.
func mustSchema(v any) map[string]any {
	schema, err := ai.SchemaMap(v)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid argument schema: %v", err))
	}
	return schema
}

func decodeArgs(arguments string, out any) error {
	if err := json.Unmarshal([]byte(arguments), out); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
