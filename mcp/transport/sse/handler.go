package sse

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/effective-security/xlog"
)

// ConnectFunc binds a new session transport to a server.
// It must start the transport.
type ConnectFunc func(ctx context.Context, tr *SSEServerTransport) error

// Handler serves SSE sessions: GET opens a stream,
// POST with a `sessionId` query parameter delivers a message to that stream.
type Handler struct {
	messageEndpoint string
	connect         ConnectFunc
	keepAlive       time.Duration

	mu       sync.RWMutex
	sessions map[string]*SSEServerTransport
}

// NewHandler returns a Handler that announces messageEndpoint to clients
func NewHandler(messageEndpoint string, connect ConnectFunc) *Handler {
	return &Handler{
		messageEndpoint: messageEndpoint,
		connect:         connect,
		sessions:        make(map[string]*SSEServerTransport),
	}
}

// WithKeepAlive enables periodic ping comments on open streams
func (h *Handler) WithKeepAlive(interval time.Duration) *Handler {
	h.keepAlive = interval
	return h
}

// Sessions returns the number of open streams
func (h *Handler) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveStream(w, r)
	case http.MethodPost:
		h.serveMessage(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tr, err := NewSSEServerTransport(h.messageEndpoint, w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sessionID := tr.SessionID()
	h.mu.Lock()
	h.sessions[sessionID] = tr
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.sessions, sessionID)
		h.mu.Unlock()
		_ = tr.Close()
		logger.ContextKV(ctx, xlog.DEBUG, "status", "session_closed", "session", sessionID)
	}()

	if err = h.connect(ctx, tr); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "connect", "session", sessionID, "err", err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.ContextKV(ctx, xlog.DEBUG, "status", "session_opened", "session", sessionID)

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tr.Done():
			return
		case <-tick:
			if err := tr.Ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) serveMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	tr := h.sessions[sessionID]
	h.mu.RUnlock()

	if tr == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if err := tr.HandlePostMessage(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
}
