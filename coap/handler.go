package coap

import (
	"github.com/Lobaro/coap-go/coapmsg"
	"github.com/Lobaro/coap-go/sckt"
)

// Handler answers one incoming request. It receives the endpoint explicitly
// rather than closing over it, so a handler never captures mutable shared
// state behind its back; the endpoint is just another argument.
type Handler func(ep *Endpoint, req *coapmsg.Message, from sckt.Addr)

// ResponseHandler receives every response (piggybacked or separate) to a
// client-issued request. An Endpoint holds exactly one, matching its single
// outstanding request at a time (NSTART=1).
type ResponseHandler func(resp *coapmsg.Message, from sckt.Addr)

// NotFoundHandler is invoked when a server-mode Endpoint cannot find a
// registered handler for the requested path. SendResponse is used directly
// because the request never gets a *Request-shaped value of its own;
// the wire message is the request.
func NotFoundHandler(ep *Endpoint, req *coapmsg.Message, from sckt.Addr) {
	ep.SendResponse(from, req.MessageID, nil, coapmsg.NotFound, coapmsg.ContentFormatNone, req.Token)
}
