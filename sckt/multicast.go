package sckt

import (
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// MulticastSocket is a UDP socket joined to an IPv4 multicast group,
// configuring TTL and loopback on an ipv4.PacketConn the way a discovery
// beacon would. It is offered purely as an alternate transport for
// link-local deployments; nothing in package coap invokes multicast-based
// discovery.
type MulticastSocket struct {
	conn     *net.UDPConn
	pktConn  *ipv4.PacketConn
	blocking bool
}

// NewMulticastSocket binds a UDP socket on port and joins group on iface.
// A nil iface joins on the interface the system picks as its default.
func NewMulticastSocket(port int, group net.IP, iface *net.Interface, ttl int) (*MulticastSocket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}

	pktConn := ipv4.NewPacketConn(conn)
	if err := pktConn.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return nil, err
	}
	if err := pktConn.SetMulticastTTL(ttl); err != nil {
		conn.Close()
		return nil, err
	}
	if err := pktConn.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, err
	}

	return &MulticastSocket{conn: conn, pktConn: pktConn, blocking: true}, nil
}

func (s *MulticastSocket) SendTo(b []byte, addr Addr) (int, error) {
	return s.pktConn.WriteTo(b, nil, &net.UDPAddr{IP: net.ParseIP(addr.IP), Port: addr.Port})
}

func (s *MulticastSocket) RecvFrom(b []byte) (int, Addr, error) {
	if !s.blocking {
		if err := s.pktConn.SetReadDeadline(time.Now()); err != nil {
			return 0, Addr{}, err
		}
	} else {
		if err := s.pktConn.SetReadDeadline(time.Time{}); err != nil {
			return 0, Addr{}, err
		}
	}

	n, _, peer, err := s.pktConn.ReadFrom(b)
	if err != nil {
		return 0, Addr{}, err
	}
	udpPeer, ok := peer.(*net.UDPAddr)
	if !ok {
		return 0, Addr{}, net.InvalidAddrError("multicast: unexpected peer address type")
	}
	return n, Addr{IP: udpPeer.IP.String(), Port: udpPeer.Port}, nil
}

func (s *MulticastSocket) SetBlocking(blocking bool) error {
	s.blocking = blocking
	return nil
}

func (s *MulticastSocket) UnixCompatible() bool { return true }

func (s *MulticastSocket) Close() error {
	return s.conn.Close()
}
