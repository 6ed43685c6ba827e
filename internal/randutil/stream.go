// Package randutil provides the keyed random stream used for provably-fair
// shuffles. Everything here is a pure function of the key, so any third party
// holding the key can reproduce the exact sequence.
package randutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

const wordsPerBlock = sha256.Size / 8

// Stream is a counter-mode HMAC-SHA256 generator. Block k is
// HMAC-SHA256(key, uint64be(k)); each block yields four big-endian words.
// It satisfies math/rand/v2.Source.
type Stream struct {
	mac     []byte
	key     []byte
	counter uint64
	block   [sha256.Size]byte
	pos     int
}

// NewStream returns a stream keyed by seed.
func NewStream(seed string) *Stream {
	return &Stream{key: []byte(seed), pos: wordsPerBlock}
}

// Uint64 returns the next word of the stream.
func (s *Stream) Uint64() uint64 {
	if s.pos == wordsPerBlock {
		s.refill()
	}
	w := binary.BigEndian.Uint64(s.block[s.pos*8:])
	s.pos++
	return w
}

func (s *Stream) refill() {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], s.counter)
	h := hmac.New(sha256.New, s.key)
	h.Write(msg[:])
	s.mac = h.Sum(s.mac[:0])
	copy(s.block[:], s.mac)
	s.counter++
	s.pos = 0
}

// Bounded returns a uniform value in [0, n) using rejection sampling so no
// residue class is favoured. It panics if n == 0.
func (s *Stream) Bounded(n uint64) uint64 {
	if n == 0 {
		panic("randutil: Bounded called with n == 0")
	}
	threshold := -n % n
	for {
		w := s.Uint64()
		if w >= threshold {
			return w % n
		}
	}
}

// Permute applies a Durstenfeld Fisher-Yates shuffle over n elements,
// walking from the top index down and calling swap(i, j) with j in [0, i].
func (s *Stream) Permute(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := int(s.Bounded(uint64(i + 1)))
		swap(i, j)
	}
}
