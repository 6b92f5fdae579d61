package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterminism(t *testing.T) {
	v := map[string]any{"b": 1, "a": []any{"x", nil}}
	h1, err := Hash(DomainQueryShape, v)
	require.NoError(t, err)
	h2, err := Hash(DomainQueryShape, map[string]any{"a": []any{"x", nil}, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashChangesWithContent(t *testing.T) {
	h1 := MustHash(DomainQueryShape, []any{"where", "o.Total"})
	h2 := MustHash(DomainQueryShape, []any{"where", "o.Name"})
	assert.NotEqual(t, h1, h2)
}

func TestDomainSeparation(t *testing.T) {
	v := []any{"same"}
	assert.NotEqual(t, MustHash(DomainQueryShape, v), MustHash(DomainCommand, v))
}

func TestHashWithDomainSeparator(t *testing.T) {
	// Without the separator these two would hash the same bytes.
	assert.NotEqual(t,
		HashWithDomain("ab", []byte("c")),
		HashWithDomain("a", []byte("bc")))
}

func TestMustHashPanics(t *testing.T) {
	assert.Panics(t, func() { MustHash(DomainCommand, struct{}{}) })
}
