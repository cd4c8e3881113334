package tools

import (
	"github.com/cockroachdb/errors"
)

// McpServerRegistrator is implemented by the MCP server
type McpServerRegistrator interface {
	RegisterTool(name string, description string, handler any) error
}

// IMCPTool is a tool that can be registered with an MCP server.
type IMCPTool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, advertised to clients.
	Description() string
	// RegisterMCP registers the tool with the given MCP server.
	RegisterMCP(registrator McpServerRegistrator) error
}

// Register registers all tools with the MCP server
func Register(registrator McpServerRegistrator, list ...IMCPTool) error {
	for _, tool := range list {
		if err := tool.RegisterMCP(registrator); err != nil {
			return errors.Wrapf(err, "failed to register tool %s", tool.Name())
		}
	}
	return nil
}

// ErrorText returns the message of err, or "Unknown error" when it has none
func ErrorText(err error) string {
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}
