package session

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

func TestKeySigner(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)
	assert.True(t, ledger.ValidAddress(signer.Address()))

	sig, err := signer.Sign(context.Background(), []byte("payload"))
	require.NoError(t, err)

	pub, err := ledger.DecodeAddress(signer.Address())
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte("payload"), sig))
}

func TestKeySigner_CancelledContext(t *testing.T) {
	signer := DemoSigner("admin")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := signer.Sign(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewKeySigner_BadSeed(t *testing.T) {
	_, err := NewKeySigner([]byte("short"))
	assert.Error(t, err)
}

func TestDemoSigner_Deterministic(t *testing.T) {
	assert.Equal(t, DemoSigner("admin").Address(), DemoSigner("admin").Address())
	assert.NotEqual(t, DemoSigner("admin").Address(), DemoSigner("validator").Address())
}

func TestKeystoreRoundTrip(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	fast := kdfParams{N: 1 << 10, R: 8, P: 1}

	require.NoError(t, saveKeystore(path, signer, "correct horse", fast))

	loaded, err := LoadKeystore(path, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), loaded.Address())

	_, err = LoadKeystore(path, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestKeystore_RequiresPassphrase(t *testing.T) {
	signer := DemoSigner("x")
	err := saveKeystore(filepath.Join(t.TempDir(), "k.json"), signer, "", kdfParams{N: 1 << 10, R: 8, P: 1})
	assert.Error(t, err)
}

func TestSession_ConnectNotifiesOnce(t *testing.T) {
	s := New(zap.NewNop())
	var seen []string
	s.OnChange(func(id ledger.Signer) {
		if id == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, id.Address())
	})

	alice := DemoSigner("alice")
	s.Connect(alice)
	s.Connect(alice)
	assert.Equal(t, alice.Address(), s.Address())

	bob := DemoSigner("bob")
	s.Connect(bob)
	s.Disconnect()
	s.Disconnect()

	assert.Equal(t, []string{alice.Address(), bob.Address(), ""}, seen)
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Equal(t, "", s.Address())
}

func TestRoleFor(t *testing.T) {
	assert.Equal(t, RoleNone, RoleFor("", "V"))
	assert.Equal(t, RoleValidator, RoleFor("V", "V"))
	assert.Equal(t, RoleDeveloper, RoleFor("D", "V"))
	assert.Equal(t, RoleDeveloper, RoleFor("D", ""))
}
