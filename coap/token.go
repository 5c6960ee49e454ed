package coap

import (
	"math/rand"
	"sync"
)

// TokenGenerator produces the client-side tokens an Endpoint stamps on
// outgoing requests to match them against their eventual response.
type TokenGenerator interface {
	NextToken() []byte
}

// RandomTokenGenerator draws tokens from a caller-supplied *rand.Rand rather
// than owning a private source, so an Endpoint can hand it the same source
// it uses for message IDs instead of seeding a second one.
type RandomTokenGenerator struct {
	lastTokenSeq uint8 // sequence counter, folded into tok[0]
	rand         *rand.Rand

	mu sync.Mutex
}

// NewRandomTokenGenerator builds a RandomTokenGenerator drawing from r. The
// generator's mutex guards only its own draws; any other user of r (such as
// the Endpoint, which draws message IDs from the same source) must not call
// it concurrently with NextToken.
func NewRandomTokenGenerator(r *rand.Rand) TokenGenerator {
	return &RandomTokenGenerator{rand: r}
}

func (t *RandomTokenGenerator) NextToken() []byte {
	// It's critical to not get the same token twice,
	// since we identify our interactions by the token
	t.mu.Lock()
	defer t.mu.Unlock()
	tok := make([]byte, 4)
	t.rand.Read(tok)
	t.lastTokenSeq++
	tok[0] = t.lastTokenSeq
	return tok
}

// CountingTokenGenerator hands out 1-byte tokens that simply count up.
// Endpoint.SetTokenGenerator swaps this in for tests that need a
// deterministic, exact token value to assert on.
type CountingTokenGenerator struct {
	lastTokenSeq uint8 // sequence counter
	mu           sync.Mutex
}

func NewCountingTokenGenerator() TokenGenerator {
	return &CountingTokenGenerator{}
}

func (t *CountingTokenGenerator) NextToken() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok := make([]byte, 1)
	t.lastTokenSeq++
	tok[0] = t.lastTokenSeq
	return tok
}
