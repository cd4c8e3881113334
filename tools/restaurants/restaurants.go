// Package restaurants provides the get_restaurants tool.
package restaurants

import (
	"bytes"
	"context"
	"fmt"

	"github.com/effective-security/freetable/freetable"
	"github.com/effective-security/freetable/mcp"
	"github.com/effective-security/freetable/tools"
)

// ToolName is the MCP name of the tool
const ToolName = "get_restaurants"

// Request is the tool input, the tool takes no arguments
type Request struct{}

// Tool lists the restaurants available for booking
type Tool struct {
	name        string
	description string
	client      *freetable.Client
}

var _ tools.IMCPTool = (*Tool)(nil)

// New returns the tool backed by client
func New(client *freetable.Client) *Tool {
	return &Tool{
		name:        ToolName,
		description: "Get a list of all available restaurants with their details",
		client:      client,
	}
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

// RegisterMCP registers the tool with the MCP server
func (t *Tool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// RunMCP fetches the restaurants and renders them as text.
// API failures are reported in the text, never as an error.
func (t *Tool) RunMCP(ctx context.Context, _ *Request) (*mcp.ToolResponse, error) {
	res := t.client.ListRestaurants(ctx)

	var text string
	switch res.Kind {
	case freetable.ResultOK:
		text = Format(res.Value.Restaurants)
	case freetable.ResultHTTPError:
		text = fmt.Sprintf("Error fetching restaurants: %d %s", res.Status, res.StatusText)
	default:
		text = "Error fetching restaurants: " + tools.ErrorText(res.Err)
	}
	return mcp.NewToolResponse(mcp.NewTextContent(text)), nil
}

// Format renders the restaurant list
func Format(list []freetable.Restaurant) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Found %d restaurants:\n\n", len(list))
	for i, r := range list {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "🍽️ **%s** (%s)\n", r.Name, r.Cuisine)
		fmt.Fprintf(&buf, "   %s\n", r.Description)
		fmt.Fprintf(&buf, "   Price: %s\n", r.PriceRange)
		fmt.Fprintf(&buf, "   📍 %s\n", r.Address)
		fmt.Fprintf(&buf, "   📞 %s\n", r.Phone)
	}
	return buf.String()
}
