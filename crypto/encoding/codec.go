package encoding

import (
	"fmt"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/ed25519"
	"github.com/ledgersync/ledgersync/crypto/secp256k1"
	cryptoproto "github.com/ledgersync/ledgersync/proto/ledgersync/crypto"
)

// PubKeyToProto takes crypto.PubKey and transforms it to a protobuf Pubkey
func PubKeyToProto(k crypto.PubKey) (*cryptoproto.PublicKey, error) {
	switch k := k.(type) {
	case ed25519.PubKey:
		return &cryptoproto.PublicKey{Type: ed25519.KeyType, Key: k}, nil
	case secp256k1.PubKey:
		return &cryptoproto.PublicKey{Type: secp256k1.KeyType, Key: k}, nil
	default:
		return nil, fmt.Errorf("toproto: key type %v is not supported", k)
	}
}

// PubKeyFromProto takes a protobuf Pubkey and transforms it to a crypto.Pubkey
func PubKeyFromProto(k *cryptoproto.PublicKey) (crypto.PubKey, error) {
	if k == nil {
		return nil, fmt.Errorf("fromproto: nil public key")
	}

	switch k.Type {
	case ed25519.KeyType:
		if len(k.Key) != ed25519.PubKeySize {
			return nil, fmt.Errorf("invalid size for PubKeyEd25519. Got %d, expected %d",
				len(k.Key), ed25519.PubKeySize)
		}
		pk := make(ed25519.PubKey, ed25519.PubKeySize)
		copy(pk, k.Key)
		return pk, nil
	case secp256k1.KeyType:
		if len(k.Key) != secp256k1.PubKeySize {
			return nil, fmt.Errorf("invalid size for PubKeySecp256k1. Got %d, expected %d",
				len(k.Key), secp256k1.PubKeySize)
		}
		pk := make(secp256k1.PubKey, secp256k1.PubKeySize)
		copy(pk, k.Key)
		return pk, nil
	default:
		return nil, fmt.Errorf("fromproto: key type %q is not supported", k.Type)
	}
}

// PrivKeyFromBytes rebuilds a private key of the named scheme.
func PrivKeyFromBytes(keyType string, bz []byte) (crypto.PrivKey, error) {
	switch keyType {
	case ed25519.KeyType:
		if len(bz) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid size for PrivKeyEd25519. Got %d, expected %d", len(bz), ed25519.PrivateKeySize)
		}
		return ed25519.PrivKey(bz), nil
	case secp256k1.KeyType:
		if len(bz) != secp256k1.PrivKeySize {
			return nil, fmt.Errorf("invalid size for PrivKeySecp256k1. Got %d, expected %d", len(bz), secp256k1.PrivKeySize)
		}
		return secp256k1.PrivKey(bz), nil
	default:
		return nil, fmt.Errorf("key type %q is not supported", keyType)
	}
}
