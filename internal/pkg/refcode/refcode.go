// Package refcode issues the reference codes registrants quote on bank
// transfers, formatted PREFIX-YY-XXXXX.
//
// XXXXX is five symbols from a 31-symbol alphabet without 0, O, 1, I and L,
// taken from SHA-256(registration id || 16 random bytes). That leaves
// 31^5 = 28,629,151 codes per event prefix and year. With n codes already
// issued a single attempt collides with probability n/31^5, about 3.5e-4 at
// n = 10,000; five consecutive collisions at that size are around 5e-18.
// Each retry draws fresh random bytes, and after MaxAttempts failures the
// generator gives up with ErrCodeCollision.
package refcode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Alphabet skips symbols that are easily confused when read aloud or handwritten.
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	// SuffixLength is the number of random symbols in a code.
	SuffixLength = 5
	// DefaultMaxAttempts bounds the collision retries.
	DefaultMaxAttempts = 5

	entropyBytes = 16
	// 248 is the largest multiple of 31 below 256.
	maxDigestByte = 248
)

var (
	// ErrCodeCollision is returned when every attempt hit an existing code.
	ErrCodeCollision = errors.New("reference code collision")
	// ErrInvalidPrefix is returned for a prefix that is not 2-8 letters or digits.
	ErrInvalidPrefix = errors.New("invalid reference code prefix")

	prefixPattern = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)
	codePattern   = regexp.MustCompile(`^[A-Z0-9]{2,8}-[0-9]{2}-[` + Alphabet + `]{5}$`)
)

// Checker reports whether a code is already taken.
type Checker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, code string) (bool, error)

func (f CheckerFunc) Exists(ctx context.Context, code string) (bool, error) {
	return f(ctx, code)
}

// Generator issues collision-checked codes.
type Generator struct {
	checker     Checker
	maxAttempts int
	random      io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRandom replaces crypto/rand as the entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// NewGenerator creates a generator checking candidates against checker.
func NewGenerator(checker Checker, opts ...Option) *Generator {
	g := &Generator{
		checker:     checker,
		maxAttempts: DefaultMaxAttempts,
		random:      rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns an unused code for the registration.
func (g *Generator) Generate(ctx context.Context, registrationID uint, prefix string, year int) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		suffix, err := g.suffix(registrationID)
		if err != nil {
			return "", err
		}
		code := Format(prefix, year, suffix)

		taken, err := g.checker.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check reference code %s: %w", code, err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %d attempts for registration %d", ErrCodeCollision, g.maxAttempts, registrationID)
}

func (g *Generator) suffix(registrationID uint) (string, error) {
	entropy := make([]byte, entropyBytes)
	if _, err := io.ReadFull(g.random, entropy); err != nil {
		return "", fmt.Errorf("failed to read secure random bytes: %w", err)
	}

	seed := make([]byte, 8, 8+entropyBytes)
	binary.BigEndian.PutUint64(seed, uint64(registrationID))
	seed = append(seed, entropy...)

	out := make([]byte, 0, SuffixLength)
	digest := sha256.Sum256(seed)
	for {
		for _, b := range digest {
			if b >= maxDigestByte {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == SuffixLength {
				return string(out), nil
			}
		}
		digest = sha256.Sum256(digest[:])
	}
}

// Format assembles PREFIX-YY-SUFFIX.
func Format(prefix string, year int, suffix string) string {
	return fmt.Sprintf("%s-%02d-%s", strings.ToUpper(prefix), year%100, suffix)
}

// Normalize uppercases and trims a code typed by a person.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValid reports whether code is well formed, after normalization.
func IsValid(code string) bool {
	return codePattern.MatchString(Normalize(code))
}
