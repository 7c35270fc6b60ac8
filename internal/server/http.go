package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Handler returns the HTTP transport: JSON-RPC over POST /mcp, a WebSocket
// stream on /ws and the health routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(s.log))
	r.Use(Recovery(s.log))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/mcp", s.handleHTTP)
	r.Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth reports queue and dataset state. A server with no loadable
// datasets is degraded but still answers non-map requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"name":    s.name,
		"version": s.version,
	}
	if s.jobs != nil {
		body["jobs"] = s.jobs.Stats()
	}
	if s.datasets != nil {
		statuses := s.datasets.Status()
		present := 0
		for _, st := range statuses {
			if st.Present {
				present++
			}
		}
		if present == 0 {
			body["status"] = "degraded"
		}
		body["datasets"] = statuses
	}
	writeJSON(w, http.StatusOK, body)
}

// handleHTTP answers one JSON-RPC message per request. Notifications get
// 202 Accepted with no body.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.maxMsg)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				errorResponse(nil, codeInvalidRequest, "Invalid Request", "message too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, codeParseError, "Parse error", err.Error()))
		return
	}

	var req MCPRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, "Parse error", err.Error()))
		return
	}

	resp := s.handle(r.Context(), newSession(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWebSocket serves one MCP session per connection. Each text frame is
// a JSON-RPC message; tool calls run concurrently and are canceled when the
// connection drops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.FromContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(int64(s.maxMsg))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := s.log.FromContext(ctx)
	log.Info("websocket session opened", "remote_addr", r.RemoteAddr)

	sess := newSession()
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	write := func(resp *MCPResponse) {
		b, err := json.Marshal(resp)
		if err != nil {
			log.WithError(err).Error("failed to encode response")
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			log.WithError(err).Debug("websocket write failed")
		}
	}

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.WithError(err).Warn("websocket read failed")
			}
			break
		}
		if typ != websocket.MessageText {
			write(errorResponse(nil, codeInvalidRequest, "Invalid Request", "binary frames are not supported"))
			continue
		}
		s.serveMessage(ctx, sess, msg, write, &wg)
	}

	cancel()
	sess.cancelAll()
	wg.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
	log.Info("websocket session closed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
