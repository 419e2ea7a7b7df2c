package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/ledgersync/ledgersync/libs/bytes"
)

// AddressSize is the size of a pubkey address.
const AddressSize = 20

// An address is a []byte, but hex-encoded even in JSON.
// []byte leaves us the option to change the address length.
// Use an alias so Unmarshal methods (with ptr receivers) are available too.
type Address = bytes.HexBytes

// Checksum returns the SHA256 of the bz.
func Checksum(bz []byte) []byte {
	h := sha256.Sum256(bz)
	return h[:]
}

type PubKey interface {
	Address() Address
	Bytes() []byte
	VerifySignature(msg []byte, sig []byte) bool
	Equals(PubKey) bool
	Type() string
}

type PrivKey interface {
	Bytes() []byte
	Sign(msg []byte) ([]byte, error)
	PubKey() PubKey
	Equals(PrivKey) bool
	Type() string
}

// CReader returns a crypto/rand reader.
func CReader() io.Reader {
	return rand.Reader
}

// CRandBytes returns numBytes of cryptographically secure random bytes.
func CRandBytes(numBytes int) []byte {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
