// Package transporttest provides an in-process hex server for tests.
package transporttest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bytesnake/hex/internal/proto"
)

// Handler answers one request. It returns an encoded answer frame, or nil to
// stay silent.
type Handler func(req proto.Request) []byte

// Server is a websocket endpoint speaking the hex frame codec.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	handler  Handler
	received []proto.Request
	conns    map[*websocket.Conn]struct{}
	accepted int
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{proto.Subprotocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

// New starts a server answering with h.
func New(h Handler) *Server {
	s := &Server{handler: h, conns: make(map[*websocket.Conn]struct{})}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// URL is the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/"
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		req, err := proto.DecodeRequest(data)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, req)
		h := s.handler
		s.mu.Unlock()

		if h == nil {
			continue
		}
		if out := h(req); out != nil {
			s.mu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, out)
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// SetHandler replaces the handler for subsequent requests.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Received returns every decoded request in arrival order.
func (s *Server) Received() []proto.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Request(nil), s.received...)
}

// Count returns how many requests with op were received.
func (s *Server) Count(op proto.Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.received {
		if r.Action.Op() == op {
			n++
		}
	}
	return n
}

// Accepted returns the number of websocket connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Broadcast writes a raw frame to every open connection.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.WriteMessage(websocket.BinaryMessage, frame)
	}
}

// DropConnections closes every open connection; clients will reconnect.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}
