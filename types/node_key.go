package types

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/ed25519"
	"github.com/ledgersync/ledgersync/crypto/encoding"
	tmos "github.com/ledgersync/ledgersync/libs/os"
)

//------------------------------------------------------------------------------
// Persistent node key

// NodeKey is the persistent key of a node. Its public key doubles as the
// validator key, so a node's NodeID is also its validator identity.
type NodeKey struct {
	// Canonical ID - hex-encoded pubkey's address (IDByteLength bytes)
	ID NodeID
	// Private key
	PrivKey crypto.PrivKey
}

type nodeKeyJSON struct {
	ID      NodeID `json:"id"`
	Type    string `json:"type"`
	PrivKey []byte `json:"priv_key"`
}

func (nk NodeKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeKeyJSON{
		ID:      nk.ID,
		Type:    nk.PrivKey.Type(),
		PrivKey: nk.PrivKey.Bytes(),
	})
}

func (nk *NodeKey) UnmarshalJSON(bz []byte) error {
	var raw nodeKeyJSON
	if err := json.Unmarshal(bz, &raw); err != nil {
		return err
	}

	privKey, err := encoding.PrivKeyFromBytes(raw.Type, raw.PrivKey)
	if err != nil {
		return err
	}

	if id := NodeIDFromPubKey(privKey.PubKey()); id != raw.ID {
		return fmt.Errorf("node key id %q does not match its private key (%q)", raw.ID, id)
	}

	*nk = NodeKey{ID: raw.ID, PrivKey: privKey}
	return nil
}

// PubKey returns the peer's PubKey
func (nk NodeKey) PubKey() crypto.PubKey {
	return nk.PrivKey.PubKey()
}

// SaveAs persists the NodeKey to filePath.
func (nk NodeKey) SaveAs(filePath string) error {
	jsonBytes, err := json.Marshal(nk)
	if err != nil {
		return err
	}
	return tmos.WriteFileAtomic(filePath, jsonBytes, 0600)
}

// LoadOrGenNodeKey attempts to load the NodeKey from the given filePath. If
// the file does not exist, it generates and saves a new NodeKey.
func LoadOrGenNodeKey(filePath string) (NodeKey, error) {
	if tmos.FileExists(filePath) {
		return LoadNodeKey(filePath)
	}

	nodeKey := GenNodeKey()

	if err := nodeKey.SaveAs(filePath); err != nil {
		return NodeKey{}, err
	}

	return nodeKey, nil
}

// GenNodeKey generates a new node key.
func GenNodeKey() NodeKey {
	return NewNodeKey(ed25519.GenPrivKey())
}

// NewNodeKey wraps an existing private key.
func NewNodeKey(privKey crypto.PrivKey) NodeKey {
	return NodeKey{
		ID:      NodeIDFromPubKey(privKey.PubKey()),
		PrivKey: privKey,
	}
}

// LoadNodeKey loads NodeKey located in filePath.
func LoadNodeKey(filePath string) (NodeKey, error) {
	jsonBytes, err := os.ReadFile(filePath)
	if err != nil {
		return NodeKey{}, err
	}
	nodeKey := NodeKey{}
	err = json.Unmarshal(jsonBytes, &nodeKey)
	if err != nil {
		return NodeKey{}, fmt.Errorf("error reading NodeKey from %v: %w", filePath, err)
	}
	return nodeKey, nil
}
