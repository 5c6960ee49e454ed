package coap

// coapError satisfies net.Error so callers can distinguish a request
// timeout (Client.Timeout elapsed) from other failures.
type coapError struct {
	err     string
	timeout bool
}

func (e *coapError) Error() string {
	return e.err
}
func (e *coapError) Timeout() bool {
	return e.timeout
}
func (e *coapError) Temporary() bool {
	return true
}
