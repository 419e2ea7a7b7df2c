package ed25519_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/ed25519"
)

func TestSignAndValidateEd25519(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	pubKey := privKey.PubKey()

	msg := crypto.CRandBytes(128)
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)

	// Test the signature
	assert.True(t, pubKey.VerifySignature(msg, sig))

	// Mutate the signature, just one bit.
	sig[7] ^= byte(0x01)

	assert.False(t, pubKey.VerifySignature(msg, sig))
}

func TestGenPrivKeyFromSecretIsDeterministic(t *testing.T) {
	a := ed25519.GenPrivKeyFromSecret([]byte("validator-0"))
	b := ed25519.GenPrivKeyFromSecret([]byte("validator-0"))
	c := ed25519.GenPrivKeyFromSecret([]byte("validator-1"))

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.True(t, a.PubKey().Equals(b.PubKey()))
	assert.Len(t, a.PubKey().Address(), crypto.AddressSize)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	msg := []byte("ledger header")
	sig, err := privKey.Sign(msg)
	require.NoError(t, err)

	assert.False(t, privKey.PubKey().VerifySignature(msg, sig[:10]))
	assert.False(t, ed25519.PubKey([]byte{1, 2, 3}).VerifySignature(msg, sig))
	assert.False(t, ed25519.GenPrivKey().PubKey().VerifySignature(msg, sig))
}
