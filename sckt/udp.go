package sckt

import (
	"net"
	"time"
)

// UDPSocket is the default Socket backend: a plain net.UDPConn. This is what
// coap.Endpoint.Start uses unless SetSocket is called with something else.
type UDPSocket struct {
	conn     *net.UDPConn
	blocking bool
}

// NewUDPSocket binds a UDP socket on the given local port. Port 0 lets the
// system pick an ephemeral port; coap.Endpoint.Start substitutes
// coapmsg.DefaultPort for 0 before it calls this.
func NewUDPSocket(port int) (*UDPSocket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	return &UDPSocket{conn: conn, blocking: true}, nil
}

func (s *UDPSocket) SendTo(b []byte, addr Addr) (int, error) {
	return s.conn.WriteToUDP(b, &net.UDPAddr{IP: net.ParseIP(addr.IP), Port: addr.Port})
}

func (s *UDPSocket) RecvFrom(b []byte) (int, Addr, error) {
	if !s.blocking {
		if err := s.conn.SetReadDeadline(time.Now()); err != nil {
			return 0, Addr{}, err
		}
	} else {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return 0, Addr{}, err
		}
	}

	n, peer, err := s.conn.ReadFromUDP(b)
	if err != nil {
		return 0, Addr{}, err
	}
	return n, Addr{IP: peer.IP.String(), Port: peer.Port}, nil
}

func (s *UDPSocket) SetBlocking(blocking bool) error {
	s.blocking = blocking
	return nil
}

func (s *UDPSocket) UnixCompatible() bool { return true }

func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
