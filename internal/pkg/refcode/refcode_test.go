package refcode

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func never(context.Context, string) (bool, error) { return false, nil }

func TestGenerate_Format(t *testing.T) {
	t.Parallel()

	g := NewGenerator(CheckerFunc(never))
	code, err := g.Generate(context.Background(), 42, "cnv", 2026)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, "CNV-26-"), code)
	assert.Len(t, code, len("CNV-26-")+SuffixLength)
	assert.True(t, IsValid(code))
	for _, r := range code[len("CNV-26-"):] {
		assert.Truef(t, strings.ContainsRune(Alphabet, r), "unexpected symbol %q", r)
	}
}

func TestAlphabet_Unambiguous(t *testing.T) {
	t.Parallel()

	assert.Len(t, Alphabet, 31)
	for _, r := range "01OIL" {
		assert.False(t, strings.ContainsRune(Alphabet, r), "alphabet contains %q", r)
	}
	assert.Equal(t, 0, 256-maxDigestByte-256%len(Alphabet))
}

func TestGenerate_DeterministicForSameEntropy(t *testing.T) {
	t.Parallel()

	entropy := bytes.Repeat([]byte{7}, entropyBytes)
	a, err := NewGenerator(CheckerFunc(never), WithRandom(bytes.NewReader(entropy))).Generate(context.Background(), 1, "CNV", 2026)
	require.NoError(t, err)
	b, err := NewGenerator(CheckerFunc(never), WithRandom(bytes.NewReader(entropy))).Generate(context.Background(), 1, "CNV", 2026)
	require.NoError(t, err)
	c, err := NewGenerator(CheckerFunc(never), WithRandom(bytes.NewReader(entropy))).Generate(context.Background(), 2, "CNV", 2026)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	t.Parallel()

	calls := 0
	checker := CheckerFunc(func(context.Context, string) (bool, error) {
		calls++
		return calls < 3, nil
	})

	code, err := NewGenerator(checker).Generate(context.Background(), 7, "CNV", 2026)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, 3, calls)
}

func TestGenerate_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	checker := CheckerFunc(func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})

	_, err := NewGenerator(checker, WithMaxAttempts(4)).Generate(context.Background(), 7, "CNV", 2026)
	assert.ErrorIs(t, err, ErrCodeCollision)
	assert.Equal(t, 4, calls)
}

func TestGenerate_CheckerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	checker := CheckerFunc(func(context.Context, string) (bool, error) { return false, boom })

	_, err := NewGenerator(checker).Generate(context.Background(), 7, "CNV", 2026)
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_InvalidPrefix(t *testing.T) {
	t.Parallel()

	for _, prefix := range []string{"", "C", "TOOLONGPREFIX", "CN-V"} {
		_, err := NewGenerator(CheckerFunc(never)).Generate(context.Background(), 1, prefix, 2026)
		assert.ErrorIs(t, err, ErrInvalidPrefix, prefix)
	}
}

func TestGenerate_UniqueWithinSmallBatch(t *testing.T) {
	t.Parallel()

	g := NewGenerator(CheckerFunc(never))
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := g.Generate(context.Background(), uint(i), "CNV", 2026)
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValid(" cnv-26-abc23 "))
	assert.False(t, IsValid("CNV-26-ABC2"))
	assert.False(t, IsValid("CNV-26-ABC20"))
	assert.False(t, IsValid("CNV-2026-ABC23"))
}
