// Package coapmsg implements the CoAP (RFC 7252) message codec: the
// bit-level wire format of a single UDP datagram: header, token, options
// with their delta/length extended-field encoding, and payload.
//
// https://github.com/dustin/go-coap and similar codecs take the same shape:
// a Message struct with a MarshalBinary/UnmarshalBinary pair doing all of
// the bit twiddling.
package coapmsg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// COAPType represents the message type.
type COAPType uint8

const (
	// Confirmable messages require acknowledgements.
	Confirmable COAPType = 0
	// NonConfirmable messages do not require acknowledgements.
	NonConfirmable COAPType = 1
	// Acknowledgement is a message indicating a response to confirmable message.
	Acknowledgement COAPType = 2
	// Reset indicates a permanent negative acknowledgement.
	Reset COAPType = 3
)

var typeNames = [256]string{
	Confirmable:     "Confirmable",
	NonConfirmable:  "NonConfirmable",
	Acknowledgement: "Acknowledgement",
	Reset:           "Reset",
}

func init() {
	for i := range typeNames {
		if typeNames[i] == "" {
			typeNames[i] = fmt.Sprintf("Unknown (0x%x)", i)
		}
	}
}

func (t COAPType) String() string {
	return typeNames[t]
}

// COAPCode is the type used for both request and response codes.
type COAPCode uint8

// Request Codes
const (
	GET    COAPCode = 1 // 0.01
	POST   COAPCode = 2 // 0.02
	PUT    COAPCode = 3 // 0.03
	DELETE COAPCode = 4 // 0.04
)

// Response Codes
const (
	Empty                 COAPCode = 0   // 0.00
	Created               COAPCode = 65  // 2.01
	Deleted               COAPCode = 66  // 2.02
	Valid                 COAPCode = 67  // 2.03
	Changed               COAPCode = 68  // 2.04
	Content               COAPCode = 69  // 2.05
	BadRequest            COAPCode = 128 // 4.00
	Unauthorized          COAPCode = 129 // 4.01
	BadOption             COAPCode = 130 // 4.02
	Forbidden             COAPCode = 131 // 4.03
	NotFound              COAPCode = 132 // 4.04
	MethodNotAllowed      COAPCode = 133 // 4.05
	NotAcceptable         COAPCode = 134 // 4.06
	PreconditionFailed    COAPCode = 140 // 4.12
	RequestEntityTooLarge COAPCode = 141 // 4.13
	UnsupportedMediaType  COAPCode = 143 // 4.15
	InternalServerError   COAPCode = 160 // 5.00
	NotImplemented        COAPCode = 161 // 5.01
	BadGateway            COAPCode = 162 // 5.02
	ServiceUnavailable    COAPCode = 163 // 5.03
	GatewayTimeout        COAPCode = 164 // 5.04
	ProxyingNotSupported  COAPCode = 165 // 5.05
)

var codeNames = [256]string{
	GET:                   "GET",
	POST:                  "POST",
	PUT:                   "PUT",
	DELETE:                "DELETE",
	Empty:                 "Empty",
	Created:               "Created",
	Deleted:               "Deleted",
	Valid:                 "Valid",
	Changed:               "Changed",
	Content:               "Content",
	BadRequest:            "BadRequest",
	Unauthorized:          "Unauthorized",
	BadOption:             "BadOption",
	Forbidden:             "Forbidden",
	NotFound:              "NotFound",
	MethodNotAllowed:      "MethodNotAllowed",
	NotAcceptable:         "NotAcceptable",
	PreconditionFailed:    "PreconditionFailed",
	RequestEntityTooLarge: "RequestEntityTooLarge",
	UnsupportedMediaType:  "UnsupportedMediaType",
	InternalServerError:   "InternalServerError",
	NotImplemented:        "NotImplemented",
	BadGateway:            "BadGateway",
	ServiceUnavailable:    "ServiceUnavailable",
	GatewayTimeout:        "GatewayTimeout",
	ProxyingNotSupported:  "ProxyingNotSupported",
}

func init() {
	for i := range codeNames {
		if codeNames[i] == "" {
			codeNames[i] = fmt.Sprintf("Unknown (0x%x)", i)
		}
	}
}

func (c COAPCode) String() string {
	return codeNames[c]
}

// Class returns the first 3 bits of the code [0, 7].
func (c COAPCode) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the last 5 bits of the code [0, 31].
func (c COAPCode) Detail() uint8 {
	return uint8(c) & (0xFF >> 3)
}

func (c COAPCode) Number() uint8 {
	return uint8(c)
}

func (c COAPCode) IsSuccess() bool {
	return c.Class() == 2
}

func (c COAPCode) IsError() bool {
	return c.Class() != 2
}

// BuildCode composes a response code from its class and detail digits, e.g.
// BuildCode(4, 4) == NotFound.
func BuildCode(class, detail uint8) COAPCode {
	return COAPCode((class << 5) | detail)
}

const (
	// MaxMessageSize is BUF_MAX_SIZE: the largest a serialized message may
	// be. MarshalBinary fails rather than truncate.
	MaxMessageSize = 1024

	// MaxOptionCount is MAX_OPTION_NUM: options beyond this count are
	// silently dropped on encode and stop the option loop on decode.
	MaxOptionCount = 10

	// MaxTokenLength is the largest a token may be; longer tokens are
	// rejected on read and cleared on write.
	MaxTokenLength = 8

	// DefaultPort is the default CoAP UDP port.
	DefaultPort = 5683
)

// Message encoding errors.
var (
	ErrInvalidTokenLen    = errors.New("coapmsg: invalid token length")
	ErrOptionTooLong      = errors.New("coapmsg: option is too long")
	ErrOptionGapTooLarge  = errors.New("coapmsg: option gap too large")
	ErrMessageTooLarge    = errors.New("coapmsg: message exceeds MaxMessageSize")
	ErrShortPacket        = errors.New("coapmsg: packet shorter than header")
	ErrInvalidVersion     = errors.New("coapmsg: invalid version")
	ErrTruncated          = errors.New("coapmsg: truncated packet")
	ErrReservedOptionExt  = errors.New("coapmsg: reserved extended option marker (15)")
	ErrEmptyPayloadMarker = errors.New("coapmsg: payload marker present with no body")
	ErrCriticalOption     = errors.New("coapmsg: critical option with invalid length")
)

// Message is a CoAP message.
type Message struct {
	Type      COAPType
	Code      COAPCode
	MessageID uint16

	Token, Payload []byte

	options CoapOptions
}

func NewMessage() Message {
	return Message{
		options: CoapOptions{},
	}
}

// NewAck builds an empty acknowledgement for messageID, the shape used for
// both piggybacked-response ACKs (caller still sets Code/Payload) and the
// empty ACK that starts a separate-response handshake.
func NewAck(messageID uint16) Message {
	return Message{
		Type:      Acknowledgement,
		Code:      Empty,
		MessageID: messageID,
	}
}

func NewReset(messageID uint16) Message {
	return Message{
		Type:      Reset,
		Code:      Empty,
		MessageID: messageID,
	}
}

func (m *Message) String() string {
	return fmt.Sprintf(`coap.Message{Code:"%s", Type:"%s", MsgId:%d, Token:%v, Options:"%s", Payload:"%s"}`,
		m.Code, m.Type, m.MessageID, m.Token, m.Options(), m.Payload)
}

func (m *Message) Options() CoapOptions {
	if m.options == nil {
		m.options = CoapOptions{}
	}
	return m.options
}

func (m *Message) SetOptions(o CoapOptions) {
	m.options = o
}

// IsConfirmable returns true if this message is confirmable.
func (m *Message) IsConfirmable() bool {
	return m.Type == Confirmable
}

// IsNonConfirmable returns true if this message is non-confirmable.
func (m *Message) IsNonConfirmable() bool {
	return m.Type == NonConfirmable
}

// Path gets the Path set on this message if any.
func (m *Message) Path() []string {
	var path []string
	if pathOpt, ok := m.options[URIPath]; ok {
		for _, v := range pathOpt.values {
			path = append(path, v.AsString())
		}
	}
	return path
}

// PathString gets a path as a / separated string.
func (m *Message) PathString() string {
	return strings.Join(m.Path(), "/")
}

// SetPathString sets a path by a / separated string.
func (m *Message) SetPathString(s string) {
	if len(s) == 0 {
		m.SetPath(nil)
		return
	}
	s = strings.TrimLeft(s, "/")
	m.SetPath(strings.Split(s, "/"))
}

// SetPath updates or adds a URIPath attribute on this message.
func (m *Message) SetPath(s []string) {
	m.Options().Del(URIPath)
	for _, part := range s {
		m.Options().Add(URIPath, part)
	}
}

const (
	extoptByteCode   = 13
	extoptByteAddend = 13
	extoptWordCode   = 14
	extoptWordAddend = 269
	extoptReserved   = 15
)

type optionsIds []OptionId

func (o optionsIds) Len() int           { return len(o) }
func (o optionsIds) Less(i, j int) bool { return o[i] < o[j] }
func (o optionsIds) Swap(i, j int)      { o[i], o[j] = o[j], o[i] }

// extendOpt splits a delta or length value into its 4-bit nibble code and the
// extension value written in the 1 or 2 following bytes: <13 is literal,
// 13..268 takes one extension byte, 269..65804 takes two.
func extendOpt(v int) (nibble, ext int) {
	switch {
	case v >= extoptWordAddend:
		return extoptWordCode, v - extoptWordAddend
	case v >= extoptByteAddend:
		return extoptByteCode, v - extoptByteAddend
	default:
		return v, 0
	}
}

// MarshalBinary fulfils encoding.BinaryMarshaler. It returns
// ErrMessageTooLarge instead of a truncated buffer when the encoded message
// would not fit in MaxMessageSize bytes.
func (m *Message) MarshalBinary() ([]byte, error) {
	tokenLen := len(m.Token)
	if tokenLen > MaxTokenLength {
		tokenLen = 0 // a token longer than MaxTokenLength is clamped rather than rejected
	}

	buf := &bytes.Buffer{}
	buf.WriteByte((1 << 6) | (uint8(m.Type) << 4) | uint8(tokenLen))
	buf.WriteByte(byte(m.Code))
	idBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(idBytes, m.MessageID)
	buf.Write(idBytes)
	buf.Write(m.Token[:tokenLen])

	writeOptHeader := func(delta, length int) {
		dNibble, dExt := extendOpt(delta)
		lNibble, lExt := extendOpt(length)
		buf.WriteByte(byte(dNibble<<4) | byte(lNibble))

		writeExt := func(nibble, ext int) {
			switch nibble {
			case extoptByteCode:
				buf.WriteByte(byte(ext))
			case extoptWordCode:
				extBytes := make([]byte, 2)
				binary.BigEndian.PutUint16(extBytes, uint16(ext))
				buf.Write(extBytes)
			}
		}
		writeExt(dNibble, dExt)
		writeExt(lNibble, lExt)
	}

	ids := make(optionsIds, 0, len(m.Options()))
	for id := range m.Options() {
		ids = append(ids, id)
	}
	sort.Sort(ids)

	written := 0
	prev := 0
	for _, id := range ids {
		for _, val := range m.options[id].values {
			if written >= MaxOptionCount {
				break // MAX_OPTION_NUM: silently drop the rest
			}
			delta := int(id) - prev
			if delta < 0 || delta > 65804 {
				return nil, ErrOptionGapTooLarge
			}
			if val.Len() > 65804 {
				return nil, ErrOptionTooLong
			}

			projected := buf.Len() + 1 + extLen(delta) + extLen(val.Len()) + val.Len()
			if projected >= MaxMessageSize {
				return nil, ErrMessageTooLarge
			}

			writeOptHeader(delta, val.Len())
			buf.Write(val.AsBytes())
			prev = int(id)
			written++
		}
	}

	if len(m.Payload) > 0 {
		if buf.Len()+1+len(m.Payload) >= MaxMessageSize {
			return nil, ErrMessageTooLarge
		}
		buf.WriteByte(0xff)
		buf.Write(m.Payload)
	}

	if buf.Len() >= MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	return buf.Bytes(), nil
}

func extLen(v int) int {
	switch {
	case v >= extoptWordAddend:
		return 2
	case v >= extoptByteAddend:
		return 1
	default:
		return 0
	}
}

// ParseMessage parses data as a Message.
func ParseMessage(data []byte) (Message, error) {
	m := Message{}
	return m, m.UnmarshalBinary(data)
}

// UnmarshalBinary parses the given binary slice as a Message.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return ErrShortPacket
	}
	if data[0]>>6 != 1 {
		return ErrInvalidVersion
	}

	m.Type = COAPType((data[0] >> 4) & 0x3)
	tokenLen := int(data[0] & 0xf)
	if tokenLen > MaxTokenLength {
		return ErrInvalidTokenLen
	}

	m.Code = COAPCode(data[1])
	m.MessageID = binary.BigEndian.Uint16(data[2:4])

	if len(data) < 4+tokenLen {
		return ErrTruncated
	}
	if tokenLen > 0 {
		m.Token = make([]byte, tokenLen)
		copy(m.Token, data[4:4+tokenLen])
	}

	b := data[4+tokenLen:]
	prev := 0
	count := 0
	m.options = CoapOptions{}

	parseExtOpt := func(nibble int) (int, error) {
		switch nibble {
		case extoptByteCode:
			if len(b) < 1 {
				return -1, ErrTruncated
			}
			v := int(b[0]) + extoptByteAddend
			b = b[1:]
			return v, nil
		case extoptWordCode:
			if len(b) < 2 {
				return -1, ErrTruncated
			}
			v := int(binary.BigEndian.Uint16(b[:2])) + extoptWordAddend
			b = b[2:]
			return v, nil
		default:
			return nibble, nil
		}
	}

	for len(b) > 0 && count < MaxOptionCount {
		if b[0] == 0xff {
			b = b[1:]
			if len(b) == 0 {
				// A trailing bare marker means "no payload", not a framing
				// error.
				m.Payload = nil
				return nil
			}
			break
		}

		deltaNibble := int(b[0] >> 4)
		lengthNibble := int(b[0] & 0x0f)
		if deltaNibble == extoptReserved || lengthNibble == extoptReserved {
			return ErrReservedOptionExt
		}
		b = b[1:]

		delta, err := parseExtOpt(deltaNibble)
		if err != nil {
			return err
		}
		length, err := parseExtOpt(lengthNibble)
		if err != nil {
			return err
		}

		if len(b) < length {
			return ErrTruncated
		}

		oid := OptionId(prev + delta)
		val := b[:length]
		def, ok := optionDefs[oid]
		if ok && (len(val) < def.MinLength || len(val) > def.MaxLength) {
			// Skip options with illegal value length (RFC 7252 §5.4.1/§5.4.3).
			if oid.Critical() {
				return ErrCriticalOption
			}
			// Elective options with an illegal length are silently ignored.
		} else {
			m.Options().Add(oid, val)
		}

		b = b[length:]
		prev = int(oid)
		count++
	}

	m.Payload = b
	return nil
}
