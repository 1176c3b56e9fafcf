package meta

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelClone(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.Set(KeySource, SourceDepreciation))
	v, ok := m.Get(KeySource)
	require.True(t, ok)
	assert.Equal(t, SourceDepreciation, v)

	cloned := m.Clone()
	m.Del(KeySource)
	_, ok = m.Get(KeySource)
	assert.False(t, ok)
	assert.Equal(t, SourceDepreciation, cloned[KeySource], "clone must not share storage")
}

func TestSetRejectsLimits(t *testing.T) {
	m := New(nil)
	assert.ErrorIs(t, m.Set("", "v"), ErrKeyLength)
	assert.ErrorIs(t, m.Set(strings.Repeat("k", MaxKeyLen+1), "v"), ErrKeyLength)
	assert.ErrorIs(t, m.Set("k", strings.Repeat("v", MaxValLen+1)), ErrValueLength)

	for i := 0; i < MaxPairs; i++ {
		require.NoError(t, m.Set(string(rune('a'+i))+"key", "v"))
	}
	assert.ErrorIs(t, m.Set("overflow", "v"), ErrTooManyPairs)
	// overwriting an existing key is still allowed at the limit
	assert.NoError(t, m.Set("akey", "w"))
}

func TestValidate(t *testing.T) {
	pairs := make(map[string]string)
	for i := 0; i < MaxPairs+1; i++ {
		pairs[strings.Repeat(string(rune('a'+i%26)), i/26+1)+"x"] = "v"
	}
	assert.ErrorIs(t, New(pairs).Validate(), ErrTooManyPairs)
	assert.NoError(t, New(map[string]string{KeyAssetID: "123"}).Validate())
}

func TestStableJSONRoundTrip(t *testing.T) {
	m := New(map[string]string{"b": "2", "a": "1"})
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2"}`, string(b))

	var back Metadata
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m, back)

	var empty Metadata
	require.NoError(t, json.Unmarshal([]byte("null"), &empty))
	assert.NotNil(t, empty)
}
