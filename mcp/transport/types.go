package transport

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
)

// JSONRPCVersion is the only protocol version accepted on the wire
const JSONRPCVersion = "2.0"

// RequestId uniquely identifies a request within a session.
// It is a JSON string or number, kept as its JSON text and marshaled back unchanged.
// The zero value is the null id.
type RequestId struct {
	raw string
}

// NewRequestID returns a numeric request id
func NewRequestID(n int64) RequestId {
	return RequestId{raw: strconv.FormatInt(n, 10)}
}

// NewStringRequestID returns a string request id
func NewStringRequestID(s string) RequestId {
	js, _ := json.Marshal(s)
	return RequestId{raw: string(js)}
}

// IsZero reports whether the id is null
func (id RequestId) IsZero() bool {
	return id.raw == ""
}

// String returns the JSON text of the id
func (id RequestId) String() string {
	if id.raw == "" {
		return "null"
	}
	return id.raw
}

// MarshalJSON implements json.Marshaler
func (id RequestId) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
// Only strings, numbers and null are accepted.
func (id *RequestId) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*id = RequestId{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.WithStack(err)
		}
		*id = NewStringRequestID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Errorf("invalid request id: %s", string(b))
	}
	*id = RequestId{raw: n.String()}
	return nil
}

// JsonRpcBody is the result of a request handler, serialized as the `result` member
type JsonRpcBody any

// BaseJSONRPCRequest is a request that expects a response
type BaseJSONRPCRequest struct {
	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc" yaml:"jsonrpc"`
	// Method corresponds to the JSON schema field "method".
	Method string `json:"method" yaml:"method"`
	// Params corresponds to the JSON schema field "params".
	// It is stored as a []byte to enable efficient marshaling and unmarshaling into custom types later on in the protocol
	Params json.RawMessage `json:"params,omitempty" yaml:"params,omitempty"`
	// Id corresponds to the JSON schema field "id".
	Id RequestId `json:"id" yaml:"id"`
}

// UnmarshalJSON implements json.Unmarshaler.
// A request must carry jsonrpc, method and id members.
func (m *BaseJSONRPCRequest) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, field := range []string{"jsonrpc", "method", "id"} {
		if v, ok := raw[field]; !ok || isNull(v) {
			return errors.Errorf("field %s in BaseJSONRPCRequest: required", field)
		}
	}
	type plain BaseJSONRPCRequest
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = BaseJSONRPCRequest(p)
	return nil
}

// BaseJSONRPCNotification is a one-way message, it does not carry an id
type BaseJSONRPCNotification struct {
	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc" yaml:"jsonrpc"`
	// Method corresponds to the JSON schema field "method".
	Method string `json:"method" yaml:"method"`
	// Params corresponds to the JSON schema field "params".
	Params json.RawMessage `json:"params,omitempty" yaml:"params,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *BaseJSONRPCNotification) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, field := range []string{"jsonrpc", "method"} {
		if v, ok := raw[field]; !ok || isNull(v) {
			return errors.Errorf("field %s in BaseJSONRPCNotification: required", field)
		}
	}
	if _, ok := raw["id"]; ok {
		return errors.New("field id in BaseJSONRPCNotification: not allowed")
	}
	type plain BaseJSONRPCNotification
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = BaseJSONRPCNotification(p)
	return nil
}

// BaseJSONRPCResponse is a successful (non-error) response to a request
type BaseJSONRPCResponse struct {
	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc" yaml:"jsonrpc"`
	// Id corresponds to the JSON schema field "id".
	Id RequestId `json:"id" yaml:"id"`
	// Result corresponds to the JSON schema field "result".
	Result json.RawMessage `json:"result" yaml:"result"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *BaseJSONRPCResponse) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, field := range []string{"jsonrpc", "id", "result"} {
		if _, ok := raw[field]; !ok {
			return errors.Errorf("field %s in BaseJSONRPCResponse: required", field)
		}
	}
	type plain BaseJSONRPCResponse
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = BaseJSONRPCResponse(p)
	return nil
}

// BaseJSONRPCErrorInner is the `error` member of an error response
type BaseJSONRPCErrorInner struct {
	// The error type that occurred.
	Code int `json:"code" yaml:"code"`
	// A short description of the error. The message SHOULD be limited to a concise single sentence.
	Message string `json:"message" yaml:"message"`
	// Additional information about the error. The value of this member is defined by the sender.
	Data any `json:"data,omitempty" yaml:"data,omitempty"`
}

// BaseJSONRPCError is a response to a request that indicates an error occurred
type BaseJSONRPCError struct {
	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc" yaml:"jsonrpc"`
	// Id corresponds to the JSON schema field "id".
	Id RequestId `json:"id" yaml:"id"`
	// Error corresponds to the JSON schema field "error".
	Error BaseJSONRPCErrorInner `json:"error" yaml:"error"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *BaseJSONRPCError) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, field := range []string{"jsonrpc", "id", "error"} {
		if v, ok := raw[field]; !ok || isNull(v) {
			return errors.Errorf("field %s in BaseJSONRPCError: required", field)
		}
	}
	type plain BaseJSONRPCError
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = BaseJSONRPCError(p)
	return nil
}

// BaseMessageType identifies which member of BaseJsonRpcMessage is set
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// BaseJsonRpcMessage is a partially deserialized JSON-RPC message
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

// MarshalJSON serializes the member selected by Type
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	default:
		return nil, errors.Errorf("unknown message type: %s", m.Type)
	}
}

// MessageID returns the id of a request, response or error, and the null id for notifications
func (m *BaseJsonRpcMessage) MessageID() RequestId {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Id
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.Id
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.Id
	}
	return RequestId{}
}

// SetMessageID replaces the id of a request, response or error
func (m *BaseJsonRpcMessage) SetMessageID(id RequestId) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		m.JsonRpcRequest.Id = id
	case BaseMessageTypeJSONRPCResponseType:
		m.JsonRpcResponse.Id = id
	case BaseMessageTypeJSONRPCErrorType:
		m.JsonRpcError.Id = id
	}
}

func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

func NewBaseMessageError(response *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: response,
	}
}

// Parse deserializes a single JSON-RPC message,
// trying request, notification, response and error shapes in that order.
func Parse(body []byte) (*BaseJsonRpcMessage, error) {
	var request BaseJSONRPCRequest
	if err := json.Unmarshal(body, &request); err == nil {
		return NewBaseMessageRequest(&request), nil
	}

	var notification BaseJSONRPCNotification
	if err := json.Unmarshal(body, &notification); err == nil {
		return NewBaseMessageNotification(&notification), nil
	}

	var response BaseJSONRPCResponse
	if err := json.Unmarshal(body, &response); err == nil {
		return NewBaseMessageResponse(&response), nil
	}

	var errorResponse BaseJSONRPCError
	if err := json.Unmarshal(body, &errorResponse); err == nil {
		return NewBaseMessageError(&errorResponse), nil
	}

	return nil, errors.New("invalid JSON-RPC message")
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}
