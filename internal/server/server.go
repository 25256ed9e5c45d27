// Package server exposes the command protocol on a WebSocket front and
// a UDP front, and relays lifecycle events from the bus to subscribed
// WebSocket connections.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/vocalcast/speakerd/internal/bus"
	"github.com/vocalcast/speakerd/internal/config"
	"github.com/vocalcast/speakerd/internal/protocol"
	"github.com/vocalcast/speakerd/internal/speech"
)

const writeTimeout = 5 * time.Second

type Server struct {
	cfg      config.ServerConfig
	svc      *speech.Service
	bus      *bus.Client
	log      *slog.Logger
	table    map[string]handlerFunc
	upgrader websocket.Upgrader

	httpServer *http.Server
	udp        *net.UDPConn
	sub        *nats.Subscription

	mu      sync.Mutex
	conns   map[*wsConn]struct{}
	closing bool

	wg sync.WaitGroup
}

// wsConn is one controller connection. The write mutex serializes
// command responses and event pushes onto the socket.
type wsConn struct {
	ws   *websocket.Conn
	subs *subscriptions

	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *wsConn) writeClose(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func New(cfg config.ServerConfig, svc *speech.Service, busClient *bus.Client, log *slog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		bus:   busClient,
		log:   log.With(slog.String("component", "server")),
		conns: make(map[*wsConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local control plane; controllers are not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.table = s.handlers()
	return s
}

// Start opens the configured listeners and the bus relay subscription.
func (s *Server) Start(ctx context.Context) error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectEventPrefix+".>", s.relay)
	if err != nil {
		return fmt.Errorf("subscribe to event subjects: %w", err)
	}
	s.sub = sub

	if s.cfg.WebSocket.Enabled {
		addr := fmt.Sprintf("%s:%d", s.cfg.WebSocket.Bind, s.cfg.WebSocket.Port)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen websocket %s: %w", addr, err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/", s.serveWS)
		s.httpServer = &http.Server{Handler: mux}
		go func() {
			if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				s.log.Error("websocket server failed", slog.String("error", err.Error()))
			}
		}()
		s.log.Info("websocket front listening", slog.String("addr", addr))
	}

	if s.cfg.UDP.Enabled {
		addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.UDP.Bind), Port: s.cfg.UDP.Port}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("listen udp %s: %w", addr, err)
		}
		s.udp = conn
		s.wg.Add(1)
		go s.serveUDP()
		s.log.Info("udp front listening", slog.String("addr", addr.String()))
	}

	return nil
}

// Shutdown refuses new connections, tells every controller the daemon
// is going away, then force-closes the sockets and waits for the
// per-connection goroutines.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closing = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.sub != nil {
		s.sub.Unsubscribe()
	}

	for _, c := range conns {
		c.writeClose(websocket.CloseGoingAway, "daemon shutting down")
		c.ws.Close()
	}

	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}
	if s.udp != nil {
		s.udp.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("shutdown timed out waiting for connections")
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := &wsConn{ws: ws, subs: newSubscriptions()}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.writeClose(websocket.CloseGoingAway, "daemon shutting down")
		ws.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.log.Info("controller connected", slog.String("remote", ws.RemoteAddr().String()))
	s.wg.Add(1)
	go s.readLoop(conn)
}

func (s *Server) readLoop(c *wsConn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.ws.Close()
		s.wg.Done()
	}()

	c.ws.SetReadLimit(int64(s.cfg.MaxMessageBytes))
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			// An oversized frame trips the read limit before any
			// parsing; everything else is a normal disconnect.
			if err == websocket.ErrReadLimit {
				s.log.Warn("dropping connection: inbound frame too large",
					slog.Int("limit", s.cfg.MaxMessageBytes))
				c.writeClose(websocket.CloseMessageTooBig, "frame exceeds limit")
			}
			return
		}
		s.handleFrame(c, data)
	}
}

// handleFrame processes one inbound WebSocket message. Protocol errors
// answer with a structured error response and leave the connection
// open.
func (s *Server) handleFrame(c *wsConn, raw []byte) {
	var env protocol.Request
	if err := json.Unmarshal(raw, &env); err != nil {
		c.writeJSON(protocol.Response{Status: protocol.StatusError, Error: "malformed JSON"})
		return
	}
	if env.ID == "" {
		c.writeJSON(protocol.Response{Status: protocol.StatusError, Error: "missing id field"})
		return
	}
	if env.Request == "" {
		c.writeJSON(protocol.Response{ID: env.ID, Status: protocol.StatusError, Error: "missing request field"})
		return
	}

	result, err := s.dispatch(env.Request, &commandContext{conn: c, raw: raw})
	if err != nil {
		c.writeJSON(protocol.Response{ID: env.ID, Status: protocol.StatusError, Error: err.Error()})
		return
	}
	c.writeJSON(protocol.Response{ID: env.ID, Status: protocol.StatusOK, Result: result})
}

// relay pushes one bus event to every connection whose filter admits
// it. There is no buffering; a connection too slow to take the write
// within the deadline is dropped.
func (s *Server) relay(msg *nats.Msg) {
	var push protocol.EventPush
	if err := json.Unmarshal(msg.Data, &push); err != nil {
		s.log.Warn("discarding malformed bus event", slog.String("subject", msg.Subject))
		return
	}

	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if !c.subs.matches(push.Event.Source, push.Event.Type) {
			continue
		}
		if err := c.writeJSON(push); err != nil {
			s.log.Warn("dropping slow controller", slog.String("error", err.Error()))
			c.ws.Close()
		}
	}
}
