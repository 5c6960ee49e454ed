package coap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"

	"github.com/Lobaro/coap-go/coapmsg"
)

// A Request represents a CoAP request to be sent by a Client.
//
// The shape mirrors net/http.Request on purpose, so anyone who has used the
// standard library's HTTP client recognizes this immediately.
type Request struct {
	// Method is GET, POST, PUT, or DELETE. An empty string means GET.
	Method string

	// Confirmable requests expect an ACK from the peer; the zero
	// value (false) would silently mean "non-confirmable", so NewRequest
	// always sets this explicitly to true.
	Confirmable bool

	// URL's Host specifies the server to connect to, Path the resource.
	URL *url.URL

	// CoAP Options, analogous to HTTP headers.
	Options coapmsg.CoapOptions

	// Body is the request payload. A nil body means no payload.
	Body io.ReadCloser

	ctx context.Context
}

// NewRequest returns a new Request given a method, URL, and optional body.
func NewRequest(method, urlStr string, body io.Reader) (*Request, error) {
	if method == "" {
		method = "GET"
	}
	if !ValidMethod(method) {
		return nil, fmt.Errorf("coap: invalid method %q", method)
	}

	if body == nil {
		body = &bytes.Buffer{}
	}
	rc, ok := body.(io.ReadCloser)
	if !ok {
		rc = ioutil.NopCloser(body)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)

	opts := make(coapmsg.CoapOptions)
	if u.RawQuery != "" {
		opts.Add(coapmsg.URIQuery, u.RawQuery)
	}

	return &Request{
		Method:      method,
		Confirmable: true,
		URL:         u,
		Options:     opts,
		Body:        rc,
	}, nil
}

// Context returns the request's context, defaulting to context.Background.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of r with its context changed to ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("nil context")
	}
	r2 := new(Request)
	*r2 = *r
	r2.ctx = ctx
	return r2
}

func (r *Request) closeBody() {
	if r.Body != nil {
		r.Body.Close()
	}
}

var validMethods = []string{"GET", "POST", "PUT", "DELETE"}

func ValidMethod(method string) bool {
	for _, m := range validMethods {
		if method == m {
			return true
		}
	}
	return false
}
