package coap

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/Lobaro/coap-go/coapmsg"
)

// A Response represents the answer to a Request issued through a Client.
type Response struct {
	Status     string // the code's name, e.g. "Content"
	StatusCode coapmsg.COAPCode

	// Body is always non-nil, even for responses without a payload.
	Body io.ReadCloser

	// Options carries the response's CoAP options (e.g. Content-Format).
	Options coapmsg.CoapOptions

	// Request is the request that produced this Response.
	Request *Request
}

func messageToResponse(msg *coapmsg.Message, req *Request) *Response {
	return &Response{
		Status:     msg.Code.String(),
		StatusCode: msg.Code,
		Body:       ioutil.NopCloser(bytes.NewReader(msg.Payload)),
		Options:    msg.Options(),
		Request:    req,
	}
}
