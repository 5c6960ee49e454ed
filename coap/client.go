package coap

import (
	"errors"
	"io"
	"io/ioutil"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Lobaro/coap-go/coapmsg"
	"github.com/Lobaro/coap-go/sckt"
)

// pollInterval is how often Client.Do pumps the endpoint's cooperative
// Loop while waiting for a synchronous response.
const pollInterval = 5 * time.Millisecond

// A Client issues blocking, net/http-flavored requests on top of an
// Endpoint's async, single-callback core. CoAP specifies NSTART (default 1)
// to cap parallel requests in flight; Client enforces that directly by
// holding a mutex around Do rather than rejecting callers once a counter is
// exhausted. Blocking is the better fit for a client that only ever wants
// one answer at a time.
type Client struct {
	Endpoint *Endpoint

	// Timeout bounds how long Do waits for a response. Zero means no
	// timeout (wait for ctx/forever).
	Timeout time.Duration

	mu sync.Mutex
}

// NewClient wraps ep. ep must already have a socket (via Start or
// SetSocket).
func NewClient(ep *Endpoint) *Client {
	return &Client{Endpoint: ep}
}

func (c *Client) Get(addr sckt.Addr, url string) (*Response, error) {
	req, err := NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(addr, req)
}

func (c *Client) Post(addr sckt.Addr, url string, cf coapmsg.ContentFormat, body io.Reader) (*Response, error) {
	req, err := NewRequest("POST", url, body)
	if err != nil {
		return nil, err
	}
	if cf.IsSet() {
		req.Options.Set(coapmsg.ContentFormatOption, cf)
	}
	return c.Do(addr, req)
}

// Do sends req to addr and blocks until a response arrives, the request's
// context is done, or c.Timeout elapses.
func (c *Client) Do(addr sckt.Addr, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := ioutil.ReadAll(req.Body)
	req.closeBody()
	if err != nil {
		return nil, err
	}

	cf := coapmsg.ContentFormatNone
	if fv := req.Options.Get(coapmsg.ContentFormatOption); fv.IsSet() {
		cf = coapmsg.ContentFormatFromOption(fv)
	}

	var query []byte
	if qv := req.Options.Get(coapmsg.URIQuery); qv.IsSet() {
		query = qv.AsBytes()
	}

	respCh := make(chan *coapmsg.Message, 1)
	prev := c.Endpoint.onResponse
	c.Endpoint.OnResponse(func(resp *coapmsg.Message, from sckt.Addr) {
		select {
		case respCh <- resp:
		default:
		}
	})
	defer c.Endpoint.OnResponse(prev)

	path := ""
	if req.URL != nil {
		path = req.URL.Path
	}

	var mid uint16
	switch req.Method {
	case "GET", "":
		mid = c.Endpoint.request(coapmsg.GET, addr, path, req.Confirmable, payload, cf, query)
	case "POST":
		mid = c.Endpoint.request(coapmsg.POST, addr, path, req.Confirmable, payload, cf, query)
	case "PUT":
		mid = c.Endpoint.request(coapmsg.PUT, addr, path, req.Confirmable, payload, cf, query)
	case "DELETE":
		mid = c.Endpoint.request(coapmsg.DELETE, addr, path, req.Confirmable, payload, cf, query)
	}
	if mid == 0 {
		return nil, errors.New("coap: failed to send request")
	}

	ctx := req.Context()
	var deadline <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case msg := <-respCh:
			return messageToResponse(msg, req), nil
		case <-deadline:
			return nil, &coapError{err: "coap: request timed out", timeout: true}
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		processed, err := c.Endpoint.Loop(false)
		if err != nil {
			return nil, err
		}
		if !processed {
			time.Sleep(pollInterval)
		}
	}
}

// ResolveAddr turns a CoAP URL's host into a socket address, applying the
// default CoAP port (coapmsg.DefaultPort) when the URL omits one. Client.Do
// takes addr explicitly rather than calling this itself, since resolving a
// hostname to an IP is a DNS lookup the endpoint's datagram model has no
// opinion about. Callers that work from URLs can still use this helper.
func ResolveAddr(host string) (sckt.Addr, error) {
	h, portStr, err := net.SplitHostPort(canonicalAddr(host))
	if err != nil {
		return sckt.Addr{}, err
	}
	ips, err := net.LookupIP(h)
	if err != nil {
		return sckt.Addr{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return sckt.Addr{}, err
	}
	return sckt.Addr{IP: ips[0].String(), Port: port}, nil
}
