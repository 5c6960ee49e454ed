package sckt

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// datagram is one inbound frame queued for RecvFrom.
type datagram struct {
	data []byte
	from Addr
}

// WebSocketSocket tunnels CoAP datagrams over a WebSocket connection. It is
// a non-UDP, non-loopback transport that still satisfies sckt.Socket, the
// same seam that would let an AT-modem or other non-POSIX backend stand in
// for a real UDP socket.
//
// It accepts a single inbound WebSocket connection at the given path and
// mirrors every binary message it receives as a datagram from that peer;
// SendTo writes back to whichever peer most recently connected.
type WebSocketSocket struct {
	upgrader websocket.Upgrader
	srv      *http.Server

	mu        sync.Mutex
	conn      *websocket.Conn
	peer      Addr
	blocking  bool
	rxQueue   chan datagram
	closeOnce sync.Once
}

// NewWebSocketSocket starts an HTTP server on port, upgrading connections to
// path to WebSocket and tunneling CoAP datagrams over them.
func NewWebSocketSocket(port int, path string) (*WebSocketSocket, error) {
	s := &WebSocketSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		blocking: true,
		rxQueue:  make(chan datagram, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleUpgrade)
	s.srv = &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux}

	ln, err := newListener(s.srv.Addr)
	if err != nil {
		return nil, err
	}
	go s.srv.Serve(ln)

	return s, nil
}

func (s *WebSocketSocket) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	peer := Addr{IP: r.RemoteAddr}

	s.mu.Lock()
	s.conn = conn
	s.peer = peer
	s.mu.Unlock()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case s.rxQueue <- datagram{data: cp, from: peer}:
		default:
			// drop oldest-first would require unbounded buffering; instead
			// drop this frame, the sender is responsible for re-issuing a
			// confirmable request if no response ever arrives.
		}
	}
}

func (s *WebSocketSocket) SendTo(b []byte, addr Addr) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return 0, ErrClosed
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *WebSocketSocket) RecvFrom(b []byte) (int, Addr, error) {
	timeout := time.Duration(0)
	if !s.blocking {
		timeout = time.Millisecond
	}

	if timeout == 0 {
		dg, ok := <-s.rxQueue
		if !ok {
			return 0, Addr{}, ErrClosed
		}
		n := copy(b, dg.data)
		return n, dg.from, nil
	}

	select {
	case dg, ok := <-s.rxQueue:
		if !ok {
			return 0, Addr{}, ErrClosed
		}
		n := copy(b, dg.data)
		return n, dg.from, nil
	case <-time.After(timeout):
		return 0, Addr{}, errTimeout{}
	}
}

func (s *WebSocketSocket) SetBlocking(blocking bool) error {
	s.blocking = blocking
	return nil
}

func (s *WebSocketSocket) UnixCompatible() bool { return false }

func (s *WebSocketSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.rxQueue)
		err = s.srv.Close()
	})
	return err
}

type errTimeout struct{}

func (errTimeout) Error() string   { return "sckt: receive timed out" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }
