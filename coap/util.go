package coap

import "strings"

// hasPort reports whether s, of the form "host", "host:port", or
// "[ipv6::address]:port", includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

var portMap = map[string]string{
	"coap":  "5683",
	"coaps": "5684",
}

// canonicalAddr returns host always with a ":port" suffix, defaulting to the
// plain CoAP port since a bare host string carries no scheme to look up.
func canonicalAddr(host string) string {
	if !hasPort(host) {
		return host + ":" + portMap["coap"]
	}
	return host
}

// removeEmptyPort strips the empty port in "host:" down to "host", as
// mandated by RFC 3986 §6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
