package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyflakeGenerator_NextID(t *testing.T) {
	gen, err := NewSonyflakeGenerator(7, "SM")
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "SM"), "id %q should carry prefix", id)
		_, dup := seen[id]
		assert.False(t, dup, "id %q generated twice", id)
		seen[id] = struct{}{}
	}
}

func TestUUIDGenerator_NextID(t *testing.T) {
	gen := NewUUIDGenerator()
	a, err := gen.NextID()
	require.NoError(t, err)
	b, err := gen.NextID()
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
