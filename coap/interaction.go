package coap

import "github.com/Lobaro/coap-go/sckt"

// Interaction is a snapshot of the endpoint's one outstanding client
// request, exposed for introspection (tests, logging) via
// Endpoint.PendingInteraction. It mirrors the pendingRequest bookkeeping the
// dispatch loop itself uses, without exposing the loop's internals.
type Interaction struct {
	Token        []byte
	Addr         sckt.Addr
	AwaitingData bool // true once the empty ACK for a separate response arrived
}

// PendingInteraction reports the endpoint's outstanding client request, if
// any. ok is false when the endpoint is IDLE with nothing in flight.
func (e *Endpoint) PendingInteraction() (interaction Interaction, ok bool) {
	if !e.pending.active {
		return Interaction{}, false
	}
	return Interaction{
		Token:        e.pending.token,
		Addr:         e.pending.addr,
		AwaitingData: e.state == stateAwaitSeparate,
	}, true
}
