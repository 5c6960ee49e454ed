package coap

import (
	"testing"
	"time"

	"github.com/Lobaro/coap-go/coapmsg"
	"github.com/Lobaro/coap-go/sckt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testAddrClient = sckt.Addr{IP: "127.0.0.1", Port: 1000}
var testAddrServer = sckt.Addr{IP: "127.0.0.1", Port: 5683}

func testLogger() *zap.SugaredLogger {
	l, _ := zap.NewDevelopment()
	return l.Sugar()
}

func newTestEndpoint() *Endpoint {
	return NewEndpoint(testLogger())
}

// TestServerNotFound checks that a request against an unregistered path
// gets a 4.04 back carrying the original message id and token.
func TestServerNotFound(t *testing.T) {
	server := newTestEndpoint()
	clientSock, serverSock := newFakeSocketPair(testAddrClient, testAddrServer)
	server.SetSocket(serverSock)

	req := coapmsg.NewMessage()
	req.Type = coapmsg.Confirmable
	req.Code = coapmsg.GET
	req.MessageID = 0x5555
	req.Token = []byte{0x09}
	req.SetPathString("missing")
	raw, err := req.MarshalBinary()
	require.NoError(t, err)
	serverSock.inject(raw, testAddrClient)

	processed, err := server.Loop(false)
	require.NoError(t, err)
	require.True(t, processed)

	buf := make([]byte, coapmsg.MaxMessageSize)
	n, _, err := clientSock.RecvFrom(buf)
	require.NoError(t, err)

	var resp coapmsg.Message
	require.NoError(t, resp.UnmarshalBinary(buf[:n]))
	assert.Equal(t, coapmsg.NotFound, resp.Code)
	assert.Equal(t, uint16(0x5555), resp.MessageID)
	assert.Equal(t, []byte{0x09}, resp.Token)
	assert.Empty(t, resp.Payload)
}

// TestPiggybackedResponse drives a GET through to an ACK carrying the
// response directly, and checks the pending request is cleared afterward.
func TestPiggybackedResponse(t *testing.T) {
	client := newTestEndpoint()
	clientSock, serverSock := newFakeSocketPair(testAddrClient, testAddrServer)
	client.SetSocket(clientSock)

	var got *coapmsg.Message
	client.OnResponse(func(resp *coapmsg.Message, from sckt.Addr) {
		got = resp
	})

	mid := client.Get(testAddrServer, "sensor")
	require.NotZero(t, mid)

	// The GET the client just sent is sitting in the server's inbox; confirm
	// its shape before answering it.
	buf := make([]byte, coapmsg.MaxMessageSize)
	n, _, err := serverSock.RecvFrom(buf)
	require.NoError(t, err)
	var sent coapmsg.Message
	require.NoError(t, sent.UnmarshalBinary(buf[:n]))
	assert.Equal(t, coapmsg.GET, sent.Code)
	assert.Equal(t, "sensor", sent.PathString())

	ack := coapmsg.NewAck(mid)
	ack.Code = coapmsg.Content
	ack.Token = sent.Token
	ack.Payload = []byte("ok")
	raw, err := ack.MarshalBinary()
	require.NoError(t, err)
	clientSock.inject(raw, testAddrServer)

	processed, err := client.Loop(false)
	require.NoError(t, err)
	require.True(t, processed)

	require.NotNil(t, got)
	assert.Equal(t, coapmsg.Content, got.Code)
	assert.Equal(t, []byte("ok"), got.Payload)
	_, pending := client.PendingInteraction()
	assert.False(t, pending, "no request should remain outstanding after a piggybacked response")
}

// TestSeparateResponse walks the empty-ack-then-CON handshake: the empty
// ACK must not fire the response callback, and the follow-up CON carrying
// the payload must itself be acked by the client.
func TestSeparateResponse(t *testing.T) {
	client := newTestEndpoint()
	clientSock, _ := newFakeSocketPair(testAddrClient, testAddrServer)
	client.SetSocket(clientSock)

	var got *coapmsg.Message
	client.OnResponse(func(resp *coapmsg.Message, from sckt.Addr) {
		got = resp
	})

	mid := client.Get(testAddrServer, "slow")
	require.NotZero(t, mid)

	emptyAck := coapmsg.NewAck(mid)
	raw, err := emptyAck.MarshalBinary()
	require.NoError(t, err)
	clientSock.inject(raw, testAddrServer)

	processed, err := client.Loop(false)
	require.NoError(t, err)
	require.True(t, processed)
	require.Nil(t, got, "callback must not fire on the empty ack")

	interaction, ok := client.PendingInteraction()
	require.True(t, ok)
	assert.True(t, interaction.AwaitingData)

	dataMsg := coapmsg.NewMessage()
	dataMsg.Type = coapmsg.Confirmable
	dataMsg.Code = coapmsg.Content
	dataMsg.MessageID = 0xCCCC
	dataMsg.Token = interaction.Token
	dataMsg.Payload = []byte("slow")
	raw, err = dataMsg.MarshalBinary()
	require.NoError(t, err)
	clientSock.inject(raw, testAddrServer)

	processed, err = client.Loop(false)
	require.NoError(t, err)
	require.True(t, processed)

	require.NotNil(t, got)
	assert.Equal(t, []byte("slow"), got.Payload)
	_, pending := client.PendingInteraction()
	assert.False(t, pending)

	// The client must have ack'd message-id 0xCCCC. The GET itself is still
	// first in the server's inbox, so skip past it to reach the ack.
	buf := make([]byte, coapmsg.MaxMessageSize)
	_, _, err = clientSock.peer.RecvFrom(buf)
	require.NoError(t, err)
	n, _, err := clientSock.peer.RecvFrom(buf)
	require.NoError(t, err)
	var finalAck coapmsg.Message
	require.NoError(t, finalAck.UnmarshalBinary(buf[:n]))
	assert.Equal(t, coapmsg.Acknowledgement, finalAck.Type)
	assert.Equal(t, uint16(0xCCCC), finalAck.MessageID)
}

// TestRetransmissionDiscard checks that an identical duplicate datagram is
// silently dropped instead of reaching the handler a second time.
func TestRetransmissionDiscard(t *testing.T) {
	server := newTestEndpoint()
	server.DiscardRetransmissions = true
	clientSock, serverSock := newFakeSocketPair(testAddrClient, testAddrServer)
	server.SetSocket(serverSock)

	calls := 0
	server.Handle("echo", func(ep *Endpoint, req *coapmsg.Message, from sckt.Addr) {
		calls++
	})

	req := coapmsg.NewMessage()
	req.Type = coapmsg.Confirmable
	req.Code = coapmsg.GET
	req.MessageID = 0x7777
	req.Token = []byte{0x01}
	req.SetPathString("echo")
	raw, err := req.MarshalBinary()
	require.NoError(t, err)

	serverSock.inject(raw, testAddrClient)
	serverSock.inject(raw, testAddrClient)

	processed, err := server.Loop(false)
	require.NoError(t, err)
	require.True(t, processed, "the first copy must be dispatched")

	processed, err = server.Loop(false)
	require.NoError(t, err)
	require.False(t, processed, "the identical second copy must be discarded, not dispatched")

	assert.Equal(t, 1, calls)
}

func TestRequestUsesInjectedTokenGenerator(t *testing.T) {
	client := newTestEndpoint()
	client.SetTokenGenerator(NewCountingTokenGenerator())
	clientSock, serverSock := newFakeSocketPair(testAddrClient, testAddrServer)
	client.SetSocket(clientSock)

	mid := client.Get(testAddrServer, "sensor")
	require.NotZero(t, mid)

	buf := make([]byte, coapmsg.MaxMessageSize)
	n, _, err := serverSock.RecvFrom(buf)
	require.NoError(t, err)
	var sent coapmsg.Message
	require.NoError(t, sent.UnmarshalBinary(buf[:n]))
	assert.Equal(t, []byte{1}, sent.Token)
}

func TestHandleSwitchesServerMode(t *testing.T) {
	ep := newTestEndpoint()
	assert.False(t, ep.IsServer())
	ep.Handle("a", func(ep *Endpoint, req *coapmsg.Message, from sckt.Addr) {})
	assert.True(t, ep.IsServer())
}

func TestPollReturnsFalseOnTimeout(t *testing.T) {
	ep := newTestEndpoint()
	sock, _ := newFakeSocketPair(testAddrClient, testAddrServer)
	ep.SetSocket(sock)

	start := time.Now()
	processed, err := ep.Poll(30*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
