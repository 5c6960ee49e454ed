package coapmsg

import (
	"bytes"
	"testing"
)

// TestOptionDeltaBoundaries checks the three encoding regions the writer and
// reader must agree on: <13 literal nibble, 13..268 one extension byte,
// 269..65804 two extension bytes.
func TestOptionDeltaBoundaries(t *testing.T) {
	cases := []struct {
		delta    int
		wantByte byte // expected high nibble of the option header byte
	}{
		{0, 0x00},
		{12, 0xc0},
		{13, 0xd0},
		{268, 0xd0},
		{269, 0xe0},
		// OptionId is a uint16, so 65535 is the largest delta a single
		// option can carry; the 65804 upper bound is checked on extendOpt
		// directly below.
		{65535, 0xe0},
	}

	if nibble, ext := extendOpt(65804); nibble != extoptWordCode || ext != 0xffff {
		t.Errorf("extendOpt(65804) = (%d, %#x), want (%d, 0xffff)", nibble, ext, extoptWordCode)
	}

	for _, c := range cases {
		m := NewMessage()
		m.Options()[OptionId(c.delta)] = Option{Id: OptionId(c.delta), values: []OptionValue{{b: []byte{1}}}}
		b, err := m.MarshalBinary()
		if err != nil {
			t.Fatalf("delta %d: unexpected error: %v", c.delta, err)
		}
		optByte := b[4] // header(4) + no token
		if optByte&0xf0 != c.wantByte {
			t.Errorf("delta %d: option header byte = %#x, want high nibble %#x", c.delta, optByte, c.wantByte)
		}
	}
}

// TestOptionLengthTooLargeFails checks the 65805 boundary on the option
// length field. A delta of 65805 cannot be built at all, since OptionId is a
// uint16.
func TestOptionLengthTooLargeFails(t *testing.T) {
	m := NewMessage()
	m.Options()[URIPath] = Option{Id: URIPath, values: []OptionValue{{b: make([]byte, 65805)}}}
	if _, err := m.MarshalBinary(); err != ErrOptionTooLong {
		t.Fatalf("expected ErrOptionTooLong encoding a 65805-byte option, got %v", err)
	}
}

func TestTokenRoundTrips(t *testing.T) {
	for _, n := range []int{0, 1, 8} {
		m := NewMessage()
		m.Type = Confirmable
		m.Code = GET
		m.MessageID = 0x1234
		m.Token = bytes.Repeat([]byte{0xAB}, n)

		b, err := m.MarshalBinary()
		if err != nil {
			t.Fatalf("token len %d: marshal: %v", n, err)
		}

		var decoded Message
		if err := decoded.UnmarshalBinary(b); err != nil {
			t.Fatalf("token len %d: unmarshal: %v", n, err)
		}
		if !bytes.Equal(decoded.Token, m.Token) {
			t.Errorf("token len %d: got %v, want %v", n, decoded.Token, m.Token)
		}
	}
}

func TestTokenLength9IsFramingError(t *testing.T) {
	raw := []byte{
		(1 << 6) | 9, // TKL=9 is invalid
		byte(GET),
		0x00, 0x01,
	}
	raw = append(raw, bytes.Repeat([]byte{0}, 9)...)

	var m Message
	if err := m.UnmarshalBinary(raw); err != ErrInvalidTokenLen {
		t.Fatalf("expected ErrInvalidTokenLen, got %v", err)
	}
}

func TestTokenLength9IsClampedOnEncode(t *testing.T) {
	m := NewMessage()
	m.Token = bytes.Repeat([]byte{0x01}, 9)
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b[0]&0x0f != 0 {
		t.Errorf("expected token length nibble to be clamped to 0, got %d", b[0]&0x0f)
	}
}

func TestReservedNibbleIsFramingError(t *testing.T) {
	// Header byte with delta nibble = 15 (reserved).
	raw := []byte{(1 << 6), byte(GET), 0x00, 0x01, 0xf0}
	var m Message
	if err := m.UnmarshalBinary(raw); err != ErrReservedOptionExt {
		t.Fatalf("expected ErrReservedOptionExt, got %v", err)
	}

	// length nibble = 15 (reserved).
	raw = []byte{(1 << 6), byte(GET), 0x00, 0x01, 0x0f}
	m = Message{}
	if err := m.UnmarshalBinary(raw); err != ErrReservedOptionExt {
		t.Fatalf("expected ErrReservedOptionExt, got %v", err)
	}
}

func TestPayloadMarkerWithNoBodyIsEmptyNotError(t *testing.T) {
	raw := []byte{(1 << 6), byte(GET), 0x00, 0x01, 0xff}
	var m Message
	if err := m.UnmarshalBinary(raw); err != nil {
		t.Fatalf("expected lenient handling of a bare marker, got error: %v", err)
	}
	if len(m.Payload) != 0 {
		t.Errorf("expected empty payload, got %q", m.Payload)
	}
}

// TestScenario1GetRequest checks that a CON GET for /sensor/temp serializes
// to an exact, hand-computed byte sequence.
func TestScenario1GetRequest(t *testing.T) {
	m := NewMessage()
	m.Type = Confirmable
	m.Code = GET
	m.MessageID = 0x1234
	m.Token = []byte{0x01}
	m.SetPath([]string{"sensor", "temp"})

	got, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{
		0x41, 0x01, 0x12, 0x34, 0x01,
		0xb6, 's', 'e', 'n', 's', 'o', 'r',
		0x04, 't', 'e', 'm', 'p',
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}

	var decoded Message
	if err := decoded.UnmarshalBinary(got); err != nil {
		t.Fatalf("round trip decode failed: %v", err)
	}
	if decoded.PathString() != "sensor/temp" {
		t.Errorf("decoded path = %q, want sensor/temp", decoded.PathString())
	}
}

// TestScenario2PostJSON checks a POST with a JSON body and Content-Format
// option, including option ordering and the fixed 2-byte format encoding.
func TestScenario2PostJSON(t *testing.T) {
	m := NewMessage()
	m.Type = Confirmable
	m.Code = POST
	m.MessageID = 0x0001
	m.SetPath([]string{"a"})
	m.Options().Set(ContentFormatOption, AppJSON)
	m.Payload = []byte(`{"v":1}`)

	got, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Content-Format (12) comes before URI-Path (11)? No: options are
	// written in ascending option-number order, so URI-Path (11) precedes
	// Content-Format (12).
	idx := bytes.IndexByte(got, 0xff)
	if idx == -1 {
		t.Fatal("expected a payload marker")
	}
	if !bytes.Equal(got[idx+1:], m.Payload) {
		t.Errorf("payload = %q, want %q", got[idx+1:], m.Payload)
	}

	// Find the Content-Format option bytes: delta 1 (12-11), length 2,
	// value 0x00 0x32 (50 decimal).
	if !bytes.Contains(got[:idx], []byte{0x12, 0x00, 0x32}) {
		t.Errorf("expected Content-Format option bytes 0x12 0x00 0x32 in %x", got[:idx])
	}
}

// TestURIQueryOptionEncodesAsSingleOption checks that a query value is
// written as one URI-Query (15) option following URI-Path (11), and that it
// round-trips back out as the same opaque bytes.
func TestURIQueryOptionEncodesAsSingleOption(t *testing.T) {
	m := NewMessage()
	m.Type = Confirmable
	m.Code = GET
	m.MessageID = 0x1234
	m.Options().Add(URIPath, "a")
	m.Options().Add(URIQuery, "x=1")

	got, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{
		0x40, 0x01, 0x12, 0x34,
		0xb1, 'a',
		0x43, 'x', '=', '1',
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}

	var decoded Message
	if err := decoded.UnmarshalBinary(got); err != nil {
		t.Fatalf("round trip decode failed: %v", err)
	}
	if decoded.Options().Get(URIQuery).AsString() != "x=1" {
		t.Errorf("decoded query = %q, want %q", decoded.Options().Get(URIQuery).AsString(), "x=1")
	}
}

func TestRoundTripArbitraryMessage(t *testing.T) {
	m := NewMessage()
	m.Type = Acknowledgement
	m.Code = Content
	m.MessageID = 0xBEEF
	m.Token = []byte{1, 2, 3, 4}
	m.Options().Set(ContentFormatOption, AppOctets)
	m.Options().Add(URIPath, "a")
	m.Options().Add(URIPath, "b")
	m.Options().Add(URIPath, "c")
	m.Payload = []byte("hello world")

	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := decoded.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Type != m.Type || decoded.Code != m.Code || decoded.MessageID != m.MessageID {
		t.Fatalf("header mismatch: got %+v", decoded)
	}
	if !bytes.Equal(decoded.Token, m.Token) {
		t.Errorf("token mismatch: got %v want %v", decoded.Token, m.Token)
	}
	if !bytes.Equal(decoded.Payload, m.Payload) {
		t.Errorf("payload mismatch: got %q want %q", decoded.Payload, m.Payload)
	}
	if decoded.PathString() != "a/b/c" {
		t.Errorf("path mismatch: got %q", decoded.PathString())
	}
	if ContentFormatFromOption(decoded.Options().Get(ContentFormatOption)) != AppOctets {
		t.Errorf("content-format mismatch")
	}
}

func TestOptionCountCapIsEnforcedOnDecode(t *testing.T) {
	m := NewMessage()
	for i := 0; i < 15; i++ {
		m.Options().Add(URIPath, "x")
	}
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := decoded.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	total := 0
	for _, opt := range decoded.Options() {
		total += len(opt.values)
	}
	if total > MaxOptionCount {
		t.Errorf("decoded %d option values, want <= %d", total, MaxOptionCount)
	}
}

func TestMessageTooLargeFailsEncode(t *testing.T) {
	m := NewMessage()
	m.Payload = bytes.Repeat([]byte{0x01}, MaxMessageSize)
	if _, err := m.MarshalBinary(); err != ErrMessageTooLarge {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}
