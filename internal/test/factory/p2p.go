package factory

import (
	"github.com/ledgersync/ledgersync/crypto/ed25519"
	"github.com/ledgersync/ledgersync/types"
)

// NodeID returns the node ID of a key derived from secret.
func NodeID(secret string) types.NodeID {
	return types.NodeIDFromPubKey(ed25519.GenPrivKeyFromSecret([]byte(secret)).PubKey())
}
