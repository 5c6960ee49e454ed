package coapmsg

import "encoding/binary"

// ContentFormat identifies the media type of a message body (option number
// ContentFormatOption, 12). It is a signed 32-bit type so it can represent
// ContentFormatNone (-1), the sentinel meaning "do not emit a
// Content-Format option at all"; a byte cannot distinguish "unset" from
// "0 (text/plain)".
type ContentFormat int32

// Content-format values (RFC 7252 §12.3).
const (
	ContentFormatNone ContentFormat = -1

	TextPlain     ContentFormat = 0  // text/plain;charset=utf-8
	AppLinkFormat ContentFormat = 40 // application/link-format
	AppXML        ContentFormat = 41 // application/xml
	AppOctets     ContentFormat = 42 // application/octet-stream
	AppExi        ContentFormat = 47 // application/exi
	AppJSON       ContentFormat = 50 // application/json
	AppCBOR       ContentFormat = 60 // application/cbor
)

// IsSet reports whether cf should be emitted as a Content-Format option.
func (cf ContentFormat) IsSet() bool {
	return cf != ContentFormatNone
}

// bytes encodes cf as a fixed 2-byte big-endian value, always the full 16
// bits rather than the RFC's minimal-length encoding.
func (cf ContentFormat) bytes() []byte {
	if cf < 0 {
		return nil
	}
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(cf))
	return b
}

// ContentFormatFromOption decodes a Content-Format option back into a
// ContentFormat. The option is encoded big-endian network byte order
// (RFC 7252 §3.2), unlike OptionValue.AsUInt16, which reads its bytes
// little-endian.
func ContentFormatFromOption(o Option) ContentFormat {
	b := o.AsBytes()
	switch len(b) {
	case 0:
		return TextPlain
	case 1:
		return ContentFormat(b[0])
	default:
		return ContentFormat(binary.BigEndian.Uint16(b[:2]))
	}
}
