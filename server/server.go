// Package server provides the HTTP entry point of the MCP server.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/config"
	"github.com/effective-security/freetable/freetable"
	"github.com/effective-security/freetable/mcp"
	"github.com/effective-security/freetable/mcp/transport/httptransport"
	"github.com/effective-security/freetable/mcp/transport/sse"
	"github.com/effective-security/freetable/tools"
	"github.com/effective-security/freetable/tools/booking"
	"github.com/effective-security/freetable/tools/restaurants"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/freetable", "server")

// Routes
const (
	RouteSSE        = "/sse"
	RouteSSEMessage = "/sse/message"
	RouteMCP        = "/mcp"
)

const (
	keepAliveInterval = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server serves the FreeTable tools over the MCP transports
type Server struct {
	cfg    *config.Config
	mcp    *mcp.Server
	http   *httptransport.HTTPTransport
	sse    *sse.Handler
	router chi.Router
}

// New returns a Server with the FreeTable tools registered
func New(cfg *config.Config) (*Server, error) {
	timeout, err := cfg.FreeTable.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	client := freetable.New(cfg.FreeTable.BaseURL)
	if timeout > 0 {
		client = client.WithTimeout(timeout)
	}

	ms := mcp.NewServer(
		mcp.WithImplementation(cfg.Server.Name, cfg.Server.Version),
		mcp.WithInstructions(cfg.Server.Instructions),
		mcp.WithPaginationLimit(cfg.ToolsPageSize),
	)
	err = tools.Register(ms,
		restaurants.New(client),
		booking.New(client),
	)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg: cfg,
		mcp: ms,
	}

	s.http = httptransport.NewHTTPTransport()
	if err = ms.Connect(context.Background(), s.http); err != nil {
		return nil, errors.Wrap(err, "failed to connect HTTP transport")
	}

	s.sse = sse.NewHandler(RouteSSEMessage, func(ctx context.Context, tr *sse.SSEServerTransport) error {
		return ms.Connect(ctx, tr)
	}).WithKeepAlive(keepAliveInterval)

	s.router = s.newRouter()

	logger.KV(xlog.INFO,
		"status", "created",
		"name", cfg.Server.Name,
		"version", cfg.Server.Version,
		"api", client.BaseURL(),
		"tools", ms.ToolNames(),
	)
	return s, nil
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle(RouteSSE, s.sse)
	r.Handle(RouteSSEMessage, s.sse)
	r.Handle(RouteMCP, s.http)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not found"))
	})
	return r
}

// MCP returns the tool registry
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close closes the transports
func (s *Server) Close() error {
	return s.http.Close()
}

// ListenAndServe serves on the configured address until ctx is done,
// then shuts the HTTP server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.cfg.ListenAddress)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
// Open SSE streams are closed on shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// streams are bound to baseCtx, cancel it to release them on shutdown
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.NOTICE, "status", "listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WithStack(err)
	case <-ctx.Done():
	}

	logger.KV(xlog.NOTICE, "status", "shutting_down")
	cancel()

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "failed to shutdown")
	}
	_ = s.Close()
	return nil
}
