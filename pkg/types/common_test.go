package types

import (
	"testing"

	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hash(t *testing.T, data string) Hash {
	t.Helper()
	m, err := mh.Sum([]byte(data), mh.SHA2_256, -1)
	require.NoError(t, err)
	return Hash(m.B58String())
}

func TestHash_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		input Hash
		want  bool
	}{
		{
			name:  "Valid multihash",
			input: sha256Hash(t, "hello"),
			want:  true,
		},
		{
			name:  "Not base58",
			input: Hash("0OIl"),
			want:  false,
		},
		{
			name:  "Truncated digest",
			input: sha256Hash(t, "hello")[:40],
			want:  false,
		},
		{
			name:  "Empty",
			input: Hash(""),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.input.IsValid())
		})
	}
}

func TestHash_String(t *testing.T) {
	s := "Qmabc"
	h := Hash(s)
	assert.Equal(t, s, h.String())
	assert.False(t, h.IsZero())
	assert.Equal(t, s, h.Short())

	var zero Hash
	assert.True(t, zero.IsZero())

	long := sha256Hash(t, "long")
	assert.Len(t, long.Short(), 12)
}

func TestObjectType(t *testing.T) {
	for _, typ := range AllObjectTypes() {
		assert.True(t, typ.IsValid())

		parsed, err := ParseObjectType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)

		parsed, err = ParseObjectType(typ.PathSegment())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	assert.Equal(t, "blob", TypeBlob.PathSegment())
	assert.Equal(t, "TREE", TypeTree.String())
	assert.False(t, ObjectType(0).IsValid())
	assert.Contains(t, ObjectType(9).String(), "UNKNOWN")

	_, err := ParseObjectType("commit")
	assert.Error(t, err)
}
