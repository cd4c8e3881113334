package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/mcp/internal/protocol"
	"github.com/effective-security/freetable/mcp/transport"
	"github.com/effective-security/freetable/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/freetable", "mcp")

// LatestProtocolVersion is returned to clients requesting an unsupported version
const LatestProtocolVersion = "2025-06-18"

// SupportedProtocolVersions lists the MCP revisions the server can speak
var SupportedProtocolVersions = []string{
	"2024-11-05",
	"2025-03-26",
	"2025-06-18",
}

// JSON-RPC error codes returned by the server
const (
	CodeMethodNotFound = protocol.CodeMethodNotFound
	CodeInvalidParams  = protocol.CodeInvalidParams
	CodeInternalError  = protocol.CodeInternalError
)

// Implementation describes the name and version of an MCP implementation
type Implementation struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// ToolsCapability is present if the server offers any tools to call
type ToolsCapability struct {
	// Whether this server supports notifications for changes to the tool list.
	ListChanged bool `json:"listChanged" yaml:"listChanged"`
}

// ServerCapabilities that the server supports
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// InitializeResponse is the result of the initialize request
type InitializeResponse struct {
	ProtocolVersion string             `json:"protocolVersion" yaml:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities" yaml:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo" yaml:"serverInfo"`
	Instructions    *string            `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// ToolRetType describes a tool in the tools/list result
type ToolRetType struct {
	Name        string  `json:"name" yaml:"name"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema any     `json:"inputSchema" yaml:"inputSchema"`
}

// ToolsResponse is the result of the tools/list request
type ToolsResponse struct {
	Tools      []ToolRetType `json:"tools" yaml:"tools"`
	NextCursor *string       `json:"nextCursor,omitempty" yaml:"nextCursor,omitempty"`
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithImplementation sets the name and version reported to clients
func WithImplementation(name, version string) ServerOption {
	return func(s *Server) {
		s.info = Implementation{Name: name, Version: version}
	}
}

// WithInstructions sets the instructions returned on initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithPaginationLimit sets the page size of tools/list, 0 disables pagination
func WithPaginationLimit(limit int) ServerOption {
	return func(s *Server) {
		s.paginationLimit = limit
	}
}

// Server is an MCP tool registry that can be connected to any number of transports
type Server struct {
	info            Implementation
	instructions    string
	paginationLimit int
	validate        *validator.Validate

	mu       sync.RWMutex
	tools    *orderedmap.OrderedMap[string, *tool]
	sessions map[*protocol.Protocol]struct{}
}

// NewServer returns a Server with no tools registered
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		info: Implementation{
			Name:    "mcp-server",
			Version: "1.0.0",
		},
		validate: newValidator(),
		tools:    orderedmap.New[string, *tool](),
		sessions: make(map[*protocol.Protocol]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Info returns the name and version reported to clients
func (s *Server) Info() Implementation {
	return s.info
}

// Connect binds the server to tr and starts the transport.
// The session lives until the transport is closed.
func (s *Server) Connect(ctx context.Context, tr transport.Transport) error {
	p := protocol.NewProtocol()
	p.SetRequestHandler("initialize", s.handleInitialize)
	p.SetRequestHandler("ping", s.handlePing)
	p.SetRequestHandler("tools/list", s.handleListTools)
	p.SetRequestHandler("tools/call", s.handleToolCalls)

	p.OnClose = func() {
		s.mu.Lock()
		delete(s.sessions, p)
		s.mu.Unlock()
	}
	p.OnError = func(err error) {
		logger.KV(xlog.DEBUG, "reason", "transport", "err", err.Error())
	}

	s.mu.Lock()
	s.sessions[p] = struct{}{}
	s.mu.Unlock()

	if err := p.Connect(ctx, tr); err != nil {
		s.mu.Lock()
		delete(s.sessions, p)
		s.mu.Unlock()
		return errors.Wrap(err, "failed to start transport")
	}
	return nil
}

// Sessions returns the number of connected transports
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RegisterTool registers a tool with the server.
// The handler must be a function of one of the forms:
//
//	func(ctx context.Context, args *T) (*ToolResponse, error)
//	func(ctx context.Context, args T) (*ToolResponse, error)
//	func(args *T) (*ToolResponse, error)
//	func(args T) (*ToolResponse, error)
//
// where T is a struct describing the tool arguments;
// its JSON schema is advertised to clients and enforced on every call.
// Registering an existing name replaces the tool.
func (s *Server) RegisterTool(name string, description string, handler any) error {
	if name == "" {
		return errors.New("tool name is required")
	}
	t, err := newTool(name, description, handler)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tools.Set(name, t)
	s.mu.Unlock()

	s.notifyToolsChanged()
	return nil
}

// DeregisterTool removes the tool with the given name
func (s *Server) DeregisterTool(name string) error {
	s.mu.Lock()
	_, present := s.tools.Delete(name)
	s.mu.Unlock()

	if !present {
		return errors.Errorf("tool %s not found", name)
	}
	s.notifyToolsChanged()
	return nil
}

// CheckToolRegistered returns true if the tool is registered
func (s *Server) CheckToolRegistered(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tools.Get(name)
	return ok
}

// ToolNames returns registered tool names in registration order
func (s *Server) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for pair := s.tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (s *Server) notifyToolsChanged() {
	s.mu.RLock()
	sessions := make([]*protocol.Protocol, 0, len(s.sessions))
	for p := range s.sessions {
		sessions = append(sessions, p)
	}
	s.mu.RUnlock()

	for _, p := range sessions {
		if err := p.Notification(context.Background(), "notifications/tools/list_changed", map[string]any{}); err != nil {
			logger.KV(xlog.DEBUG, "reason", "list_changed", "err", err.Error())
		}
	}
}

func (s *Server) handleInitialize(ctx context.Context, request *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params struct {
		ProtocolVersion string         `json:"protocolVersion"`
		ClientInfo      Implementation `json:"clientInfo"`
	}
	if len(request.Params) > 0 {
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return nil, protocol.NewError(CodeInvalidParams, "invalid params: %s", err.Error())
		}
	}

	version := LatestProtocolVersion
	if slices.Contains(SupportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "initialize",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol", version,
	)

	res := InitializeResponse{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: true},
		},
		ServerInfo: s.info,
	}
	if s.instructions != "" {
		res.Instructions = &s.instructions
	}
	return res, nil
}

func (s *Server) handlePing(context.Context, *transport.BaseJSONRPCRequest, protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	return map[string]any{}, nil
}

func (s *Server) handleListTools(ctx context.Context, request *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params struct {
		Cursor *string `json:"cursor"`
	}
	if len(request.Params) > 0 && string(request.Params) != "null" {
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return nil, protocol.NewError(CodeInvalidParams, "failed to unmarshal arguments: %s", err.Error())
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pair := s.tools.Oldest()
	if params.Cursor != nil && s.paginationLimit > 0 {
		c, err := base64.StdEncoding.DecodeString(*params.Cursor)
		if err != nil {
			return nil, protocol.NewError(CodeInvalidParams, "failed to decode cursor: %s", err.Error())
		}
		after := s.tools.GetPair(string(c))
		if after == nil {
			return nil, protocol.NewError(CodeInvalidParams, "invalid cursor")
		}
		pair = after.Next()
	}

	res := ToolsResponse{
		Tools: []ToolRetType{},
	}
	var last string
	for ; pair != nil; pair = pair.Next() {
		if s.paginationLimit > 0 && len(res.Tools) >= s.paginationLimit {
			cursor := base64.StdEncoding.EncodeToString([]byte(last))
			res.NextCursor = &cursor
			break
		}
		res.Tools = append(res.Tools, pair.Value.describe())
		last = pair.Key
	}

	return res, nil
}

func (s *Server) handleToolCalls(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewError(CodeInvalidParams, "failed to unmarshal arguments: %s", err.Error())
	}

	s.mu.RLock()
	t, ok := s.tools.Get(params.Name)
	s.mu.RUnlock()

	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, params.Name)
		return nil, protocol.NewError(CodeInvalidParams, "unknown tool: %s", params.Name)
	}

	return t.call(ctx, s.validate, params.Arguments)
}
