package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeUnique(t *testing.T) {
	gen, err := NewSnowflakeGenerator(7)
	require.NoError(t, err)

	seen := make(map[int64]bool, 5000)
	prev := int64(0)
	for range 5000 {
		id := gen.Generate()
		assert.False(t, seen[id])
		assert.Greater(t, id, prev)
		seen[id] = true
		prev = id
	}
}

func TestSnowflakeInvalidNode(t *testing.T) {
	_, err := NewSnowflakeGenerator(4096)
	assert.Error(t, err)
	assert.Error(t, Init(-1))
}

func TestGenIDString(t *testing.T) {
	a, b := GenIDString(), GenIDString()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
