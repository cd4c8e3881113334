// Package booking provides the create_booking tool.
package booking

import (
	"bytes"
	"context"
	"fmt"

	"github.com/effective-security/freetable/freetable"
	"github.com/effective-security/freetable/mcp"
	"github.com/effective-security/freetable/tools"
)

// ToolName is the MCP name of the tool
const ToolName = "create_booking"

// Request is the tool input.
// Date and time are passed to the API as given.
type Request struct {
	RestaurantID    int    `json:"restaurantId" jsonschema:"description=ID of the restaurant"`
	TableID         int    `json:"tableId" jsonschema:"description=ID of the table to book"`
	CustomerName    string `json:"customerName" jsonschema:"description=Full name of the customer"`
	CustomerEmail   string `json:"customerEmail" jsonschema:"format=email,description=Email address of the customer" validate:"email"`
	CustomerPhone   string `json:"customerPhone" jsonschema:"description=Phone number of the customer"`
	BookingDate     string `json:"bookingDate" jsonschema:"description=Date of the booking in YYYY-MM-DD format"`
	BookingTime     string `json:"bookingTime" jsonschema:"description=Time of the booking in HH:MM format (24-hour)"`
	PartySize       int    `json:"partySize" jsonschema:"description=Number of people in the party"`
	SpecialRequests string `json:"specialRequests,omitempty" jsonschema:"description=Any special requests or notes"`
}

// Tool creates a table booking
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
		description: "Create a new table booking at a restaurant",
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

// RunMCP submits the booking and renders the confirmation.
// API failures are reported in the text, never as an error.
func (t *Tool) RunMCP(ctx context.Context, req *Request) (*mcp.ToolResponse, error) {
	res := t.client.CreateBooking(ctx, &freetable.BookingRequest{
		RestaurantID:    req.RestaurantID,
		TableID:         req.TableID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		BookingDate:     req.BookingDate,
		BookingTime:     req.BookingTime,
		PartySize:       req.PartySize,
		SpecialRequests: req.SpecialRequests,
	})

	var text string
	switch res.Kind {
	case freetable.ResultOK:
		text = Format(res.Value.Booking, req.SpecialRequests)
	case freetable.ResultHTTPError:
		text = fmt.Sprintf("Error creating booking: %d %s - %s", res.Status, res.StatusText, res.Body)
	default:
		text = "Error creating booking: " + tools.ErrorText(res.Err)
	}
	return mcp.NewToolResponse(mcp.NewTextContent(text)), nil
}

// Format renders the booking confirmation,
// specialRequests is echoed back when not empty
func Format(b *freetable.Booking, specialRequests string) string {
	var buf bytes.Buffer
	buf.WriteString("✅ Booking created successfully!\n\n")
	fmt.Fprintf(&buf, "📅 **Date**: %s\n", b.BookingDate)
	fmt.Fprintf(&buf, "🕐 **Time**: %s\n", b.BookingTime)
	fmt.Fprintf(&buf, "👥 **Party Size**: %d\n", b.PartySize)
	fmt.Fprintf(&buf, "🆔 **Booking ID**: %s\n", b.ID)
	fmt.Fprintf(&buf, "📋 **Status**: %s\n", b.Status)
	if specialRequests != "" {
		fmt.Fprintf(&buf, "📝 **Special Requests**: %s\n", specialRequests)
	}
	return buf.String()
}
