// Package sckt abstracts the datagram transport a coap.Endpoint sends and
// receives on. It exists so the endpoint can be handed a real UDP socket,
// a multicast-joined UDP socket, or an exotic transport (a WebSocket tunnel,
// an AT-modem serial link) without caring which.
package sckt

import (
	"errors"
	"fmt"
)

// Addr is a destination/origin address. It is a plain value instead of
// net.Addr so backends with no real network address (e.g. the WebSocket
// tunnel) can still satisfy Socket.
type Addr struct {
	IP   string
	Port int
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// ErrClosed is returned by RecvFrom/SendTo once Close has been called.
var ErrClosed = errors.New("sckt: socket closed")

// Socket is the seam a coap.Endpoint is driven through. Implementations must
// be safe to call from a single goroutine only (the Endpoint never calls a
// Socket concurrently with itself), but may run their own background
// goroutines internally to keep a receive queue filled.
type Socket interface {
	// SendTo writes b to addr. It returns the number of bytes written.
	SendTo(b []byte, addr Addr) (int, error)

	// RecvFrom reads the next available datagram into b. It returns the
	// number of bytes read and the address it came from.
	RecvFrom(b []byte) (n int, addr Addr, err error)

	// SetBlocking toggles whether RecvFrom blocks until a datagram is
	// available (true) or returns immediately when none is queued (false).
	SetBlocking(blocking bool) error

	// UnixCompatible reports whether the underlying transport is a real
	// POSIX socket (true) or something else, such as a serial AT-command
	// socket (false). Socket always exposes the single SendTo(bytes, Addr)
	// shape regardless; this flag just tells callers porting AT-modem
	// style backends what they're driving underneath.
	UnixCompatible() bool

	Close() error
}
