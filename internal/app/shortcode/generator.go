// Package shortcode draws unguessable short codes.
//
// Codes act as a weak access token for unlisted links, so characters come
// from crypto/rand rather than a sequence or hash.
package shortcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// Alphabet holds the 62 characters a generated code may contain.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	DefaultLength      = 6
	DefaultMaxAttempts = 1_000_000

	// Largest multiple of len(Alphabet) that fits in a byte; bytes at or above
	// it are rejected so every character stays equally likely.
	rejectThreshold = 256 - 256%len(Alphabet)
)

// ErrExhausted is returned when every attempt collided with a taken code.
var ErrExhausted = errors.New("shortcode: no free code found")

// Generator produces random codes that avoid a caller supplied key set.
type Generator struct {
	random      io.Reader
	maxAttempts int
}

// Option customises a Generator.
type Option func(*Generator)

// WithRandom replaces the entropy source. Tests use it for deterministic draws.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// WithMaxAttempts caps how many draws Generate makes before giving up.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// New returns a Generator reading from crypto/rand.
func New(opts ...Option) *Generator {
	g := &Generator{
		random:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws codes of the given length until one is not taken.
//
// With 62^6 (about 56 billion) codes at the default length a registry would
// need to be enormous before retries matter, so the attempt cap only turns an
// otherwise unbounded loop into ErrExhausted.
func (g *Generator) Generate(length int, taken func(code string) bool) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code, err := g.draw(length)
		if err != nil {
			return "", err
		}
		if taken == nil || !taken(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, g.maxAttempts)
}

func (g *Generator) draw(length int) (string, error) {
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("shortcode: read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectThreshold {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether code is a non-empty run of ASCII letters and digits.
func Valid(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
