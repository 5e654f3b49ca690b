package ledger

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeAddress(t *testing.T) {
	pub := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)).Public().(ed25519.PublicKey)

	addr, err := EncodeAddress(pub)
	require.NoError(t, err)
	assert.Len(t, addr, 58)

	key, err := DecodeAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), key)
	assert.True(t, ValidAddress(addr))
}

func TestDecodeAddress_Checksum(t *testing.T) {
	pub := make([]byte, 32)
	pub[0] = 7
	addr, err := EncodeAddress(pub)
	require.NoError(t, err)

	// the first character carries key bits, so changing it breaks the checksum
	require.Equal(t, byte('A'), addr[0])
	tampered := "B" + addr[1:]

	assert.False(t, ValidAddress(tampered))
	assert.False(t, ValidAddress("not an address"))
}

func TestEncodeAddress_WrongLength(t *testing.T) {
	_, err := EncodeAddress([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestApplicationAddress(t *testing.T) {
	a := ApplicationAddress(1001)
	assert.True(t, ValidAddress(a))
	assert.Equal(t, a, ApplicationAddress(1001))
	assert.NotEqual(t, a, ApplicationAddress(1002))
}

func TestAccountInfo_Holding(t *testing.T) {
	info := &AccountInfo{Assets: []AssetHolding{{AssetID: 5, Amount: 40}}}

	amount, ok := info.Holding(5)
	assert.True(t, ok)
	assert.Equal(t, uint64(40), amount)

	_, ok = info.Holding(6)
	assert.False(t, ok)
}

func TestFault_Error(t *testing.T) {
	f := &Fault{Method: MethodApproveProject, Message: "unauthorized: validator only"}
	assert.Equal(t, "approveProject: unauthorized: validator only", f.Error())
	assert.Equal(t, "x", (&Fault{Message: "x"}).Error())
}
