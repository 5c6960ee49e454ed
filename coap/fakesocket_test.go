package coap

import (
	"net"
	"sync"

	"github.com/Lobaro/coap-go/sckt"
)

// fakeDatagram is one packet queued on a fakeSocket.
type fakeDatagram struct {
	data []byte
	from sckt.Addr
}

// fakeSocket is an in-memory sckt.Socket: SendTo on one end appends to the
// peer's inbox, RecvFrom drains this end's inbox. It lets endpoint tests
// drive two Endpoints (or one Endpoint and a hand-built byte sequence)
// against each other without a real UDP socket.
type fakeSocket struct {
	self sckt.Addr
	peer *fakeSocket // may be nil; sent bytes go nowhere

	mu     sync.Mutex
	inbox  []fakeDatagram
	closed bool
}

func newFakeSocketPair(aAddr, bAddr sckt.Addr) (*fakeSocket, *fakeSocket) {
	a := &fakeSocket{self: aAddr}
	b := &fakeSocket{self: bAddr}
	a.peer = b
	b.peer = a
	return a, b
}

func (s *fakeSocket) SendTo(b []byte, addr sckt.Addr) (int, error) {
	if s.peer == nil {
		return len(b), nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	s.peer.mu.Lock()
	s.peer.inbox = append(s.peer.inbox, fakeDatagram{data: cp, from: s.self})
	s.peer.mu.Unlock()
	return len(b), nil
}

func (s *fakeSocket) RecvFrom(b []byte) (int, sckt.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, sckt.Addr{}, sckt.ErrClosed
	}
	if len(s.inbox) == 0 {
		return 0, sckt.Addr{}, &net.DNSError{IsTimeout: true}
	}
	dg := s.inbox[0]
	s.inbox = s.inbox[1:]
	n := copy(b, dg.data)
	return n, dg.from, nil
}

func (s *fakeSocket) SetBlocking(bool) error { return nil }
func (s *fakeSocket) UnixCompatible() bool   { return true }
func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// inject queues raw bytes as if received from from, bypassing the peer link.
func (s *fakeSocket) inject(data []byte, from sckt.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = append(s.inbox, fakeDatagram{data: data, from: from})
}
