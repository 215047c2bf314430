// Package server is the daemon's websocket front door: the extension
// bridge mounts at /host and overlay clients attach at /ui. Overlay
// requests carry correlation ids and map one-to-one onto engine
// operations; hub notices fan out to every overlay connection as typed
// event frames.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"nhooyr.io/websocket"
	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/engine"
	"github.com/krail/tabwarden/internal/hub"
)

// Server serves the two websocket surfaces on one listener.
type Server struct {
	log    pslog.Logger
	eng    *engine.Engine
	hub    *hub.Hub
	bridge http.Handler
	addr   string
}

// New wires the engine's operation surface and the hub's notice stream
// to addr. bridge handles the extension websocket and mounts at /host;
// a nil bridge leaves /host unrouted, as when the devtools host drives
// the browser directly.
func New(eng *engine.Engine, h *hub.Hub, bridge http.Handler, addr string, logger pslog.Logger) *Server {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Server{log: logger, eng: eng, hub: h, bridge: bridge, addr: addr}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.bridge != nil {
		mux.Handle("/host", s.bridge)
	}
	mux.HandleFunc("/ui", s.handleUI)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is cancelled. Active websocket
// connections are dropped hard on shutdown; both peers reconnect.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	s.log.Info("listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleUI owns one overlay connection: a relay goroutine pushes hub
// notices out while this goroutine reads requests and dispatches each
// on its own goroutine, so a slow host round trip never delays the
// next request.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("ui accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	ctx := r.Context()
	notices, cancel := s.hub.Subscribe()
	defer cancel()
	go s.relay(ctx, conn, notices)

	s.log.Info("ui connected", "remote", r.RemoteAddr)
	defer s.log.Info("ui disconnected", "remote", r.RemoteAddr)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req uiRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.log.Warn("ui request unparseable", "err", err)
			continue
		}
		go s.serve(ctx, conn, req)
	}
}

// relay forwards hub notices to one overlay connection. Ends when the
// subscription is cancelled or the connection dies.
func (s *Server) relay(ctx context.Context, conn *websocket.Conn, notices <-chan hub.Notice) {
	for n := range notices {
		data, err := json.Marshal(noticeFrame(n))
		if err != nil {
			s.log.Error("notice marshal failed", "kind", string(n.Kind), "err", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}

// serve runs one overlay request and writes its reply. The client
// matches replies to requests by id, so ordering does not matter.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, req uiRequest) {
	resp := s.dispatch(ctx, req)
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("ui response marshal failed", "action", req.Action, "err", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.log.Debug("ui reply dropped, connection gone", "action", req.Action)
	}
}
