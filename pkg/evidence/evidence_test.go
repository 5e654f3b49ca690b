package evidence

import (
	"testing"

	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReference(t *testing.T) {
	ref, err := Reference([]byte("mangrove survey"))
	require.NoError(t, err)
	assert.Equal(t, byte('b'), ref[0])

	again, err := Reference([]byte("mangrove survey"))
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	info, err := Inspect(ref)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Version)
	assert.Equal(t, uint64(multihash.SHA2_256), info.HashCode)
	assert.Equal(t, "sha2-256", info.HashName)
}

func TestValidate(t *testing.T) {
	ref, err := Reference([]byte("report.pdf"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		ref     string
		strict  bool
		wantErr error
	}{
		{"lenient accepts short token", "bafy123", false, nil},
		{"lenient rejects blank", "   ", false, ErrEmpty},
		{"lenient rejects whitespace", "bafy 123", false, ErrMalformed},
		{"strict rejects short token", "bafy123", true, ErrMalformed},
		{"strict accepts cid", ref, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.ref, tt.strict)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMatches(t *testing.T) {
	data := []byte("field photos")
	ref, err := Reference(data)
	require.NoError(t, err)

	ok, err := Matches(ref, data)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches(ref, []byte("other"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Matches("nope", data)
	assert.ErrorIs(t, err, ErrMalformed)
}
