// Package roundid generates and checks round ids: UUIDv7 values written as
// 26 lowercase Crockford base32 characters, so ids sort by creation time.
package roundid

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Crockford's base32, lower case
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of an encoded id
const Length = 26

// Generator creates round ids from a source of randomness
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator reading from r, or crypto/rand when r is nil
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

// New returns a fresh round id
func New() (string, error) {
	return NewGenerator(nil).New()
}

// New returns a fresh round id
func (g *Generator) New() (string, error) {
	id, err := uuid.NewV7FromReader(g.rand)
	if err != nil {
		return "", fmt.Errorf("generate round id: %w", err)
	}
	return Encode(id), nil
}

// Encode writes a UUID as 26 base32 characters. The 128 bits are preceded by
// two zero bits, so the first character is always 0-7.
func Encode(id uuid.UUID) string {
	out := make([]byte, Length)
	for i := range out {
		var v byte
		for b := range 5 {
			v = v<<1 | bitAt(id, i*5-2+b)
		}
		out[i] = alphabet[v]
	}
	return string(out)
}

func bitAt(id uuid.UUID, pos int) byte {
	if pos < 0 {
		return 0
	}
	return id[pos/8] >> (7 - pos%8) & 1
}

// Parse decodes an encoded id back into its UUID
func Parse(s string) (uuid.UUID, error) {
	var id uuid.UUID
	if len(s) != Length {
		return id, fmt.Errorf("round id must be exactly %d characters, got %d", Length, len(s))
	}
	if s[0] > '7' {
		return id, fmt.Errorf("round id first character must be 0-7, got %c", s[0])
	}
	pos := -2
	for i := 0; i < len(s); i++ {
		v := strings.IndexByte(alphabet, s[i])
		if v < 0 {
			return id, fmt.Errorf("invalid character %c at position %d", s[i], i)
		}
		for b := 4; b >= 0; b-- {
			if pos >= 0 && (v>>b)&1 == 1 {
				id[pos/8] |= 1 << (7 - pos%8)
			}
			pos++
		}
	}
	return id, nil
}

// Validate reports whether s is a well-formed round id
func Validate(s string) error {
	id, err := Parse(s)
	if err != nil {
		return err
	}
	if id.Version() != 7 {
		return fmt.Errorf("round id is UUID version %d, want 7", id.Version())
	}
	return nil
}
