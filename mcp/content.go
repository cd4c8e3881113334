package mcp

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ContentType is the type of a content item
type ContentType string

const (
	// ContentTypeText is a plain text content item
	ContentTypeText ContentType = "text"
)

// TextContent is text provided to or from an LLM
type TextContent struct {
	// The text content of the message.
	Text string `json:"text" yaml:"text"`
}

// Content is one item of a tool result
type Content struct {
	Type        ContentType
	TextContent *TextContent
}

// MarshalJSON flattens the typed member into the content object
func (c *Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentTypeText:
		if c.TextContent == nil {
			return nil, errors.New("text content is nil")
		}
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{
			Type: c.Type,
			Text: c.TextContent.Text,
		})
	default:
		return nil, errors.Errorf("unknown content type: %s", c.Type)
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Content) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type ContentType `json:"type"`
		Text *string     `json:"text"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case ContentTypeText:
		if raw.Text == nil {
			return errors.New("text content is missing text")
		}
		c.Type = raw.Type
		c.TextContent = &TextContent{Text: *raw.Text}
		return nil
	default:
		return errors.Errorf("unknown content type: %s", raw.Type)
	}
}

// NewTextContent returns a text content item
func NewTextContent(content string) *Content {
	return &Content{
		Type: ContentTypeText,
		TextContent: &TextContent{
			Text: content,
		},
	}
}

// ToolResponse is the result envelope of a tool call
type ToolResponse struct {
	Content []*Content `json:"content" yaml:"content"`
	// IsError marks a result that describes a failure of the tool itself
	IsError bool `json:"isError,omitempty" yaml:"isError,omitempty"`
}

// NewToolResponse returns a successful tool result
func NewToolResponse(content ...*Content) *ToolResponse {
	return &ToolResponse{
		Content: append([]*Content{}, content...),
	}
}

// NewToolErrorResponse returns a tool result flagged as an error
func NewToolErrorResponse(text string) *ToolResponse {
	return &ToolResponse{
		Content: []*Content{NewTextContent(text)},
		IsError: true,
	}
}

// Text returns the concatenated text of all text items
func (r *ToolResponse) Text() string {
	var text string
	for _, c := range r.Content {
		if c != nil && c.Type == ContentTypeText && c.TextContent != nil {
			text += c.TextContent.Text
		}
	}
	return text
}

// toolResponseSent is what the server returns for a tools/call request
type toolResponseSent struct {
	Response *ToolResponse
	Error    error
}

func newToolResponseSent(response *ToolResponse) *toolResponseSent {
	return &toolResponseSent{Response: response}
}

func newToolResponseSentError(err error) *toolResponseSent {
	return &toolResponseSent{Error: err}
}

// MarshalJSON reports handler errors as an error result, not a protocol error
func (c *toolResponseSent) MarshalJSON() ([]byte, error) {
	if c.Error != nil {
		return json.Marshal(NewToolErrorResponse(c.Error.Error()))
	}
	if c.Response == nil {
		return json.Marshal(NewToolResponse())
	}
	return json.Marshal(c.Response)
}
