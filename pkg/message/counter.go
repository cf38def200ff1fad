package message

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
)

// idAlphabet is the character set used for message ids.
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// IDSource generates message ids and reply ids.
//
// It is not safe for concurrent use.
type IDSource struct {
	rng *rand.Rand
}

// NewIDSource creates a source seeded from crypto/rand.
func NewIDSource() *IDSource {
	return NewIDSourceWithSeed(randomSeed())
}

// NewIDSourceWithSeed creates a deterministic source. Used for testing.
func NewIDSourceWithSeed(seed int64) *IDSource {
	return &IDSource{rng: rand.New(rand.NewSource(seed))}
}

// NextMessageID returns a random 4-character alphanumeric id.
func (s *IDSource) NextMessageID() MessageID {
	var id MessageID
	for i := range id {
		id[i] = idAlphabet[s.rng.Intn(len(idAlphabet))]
	}
	return id
}

// NextReplyID returns a random non-zero reply id.
func (s *IDSource) NextReplyID() uint32 {
	for {
		if v := s.rng.Uint32(); v != 0 {
			return v
		}
	}
}

// randomSeed reads a seed from crypto/rand.
func randomSeed() int64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// Fallback to a fixed seed if random fails (should never happen)
		return 1
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
