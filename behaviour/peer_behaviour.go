package behaviour //nolint:misspell

import (
	"fmt"

	"github.com/ledgersync/ledgersync/types"
)

// PeerBehaviour is a struct describing a behaviour a peer performed.
// `peerID` identifies the peer and reason characterizes the specific
// behaviour performed by the peer.
type PeerBehaviour struct {
	peerID types.NodeID
	reason interface{}
}

// PeerID returns the peer the behaviour is attributed to.
func (pb PeerBehaviour) PeerID() types.NodeID { return pb.peerID }

// IsBad reports whether the behaviour should cost the peer its connection.
func (pb PeerBehaviour) IsBad() bool {
	switch pb.reason.(type) {
	case badMessage, invalidSyncResponse:
		return true
	default:
		return false
	}
}

func (pb PeerBehaviour) String() string {
	return fmt.Sprintf("%s: %v", pb.peerID.ShortString(), pb.reason)
}

type badMessage struct {
	explanation string
}

// BadMessage returns a badMessage PeerBehaviour.
func BadMessage(peerID types.NodeID, explanation string) PeerBehaviour {
	return PeerBehaviour{peerID: peerID, reason: badMessage{explanation}}
}

type invalidSyncResponse struct {
	explanation string
}

// InvalidSyncResponse returns an invalidSyncResponse PeerBehaviour. It is
// reported when a batch fails verification.
func InvalidSyncResponse(peerID types.NodeID, explanation string) PeerBehaviour {
	return PeerBehaviour{peerID: peerID, reason: invalidSyncResponse{explanation}}
}

type validSyncResponse struct {
	explanation string
}

// ValidSyncResponse returns a validSyncResponse PeerBehaviour. It is reported
// when a batch passes verification.
func ValidSyncResponse(peerID types.NodeID, explanation string) PeerBehaviour {
	return PeerBehaviour{peerID: peerID, reason: validSyncResponse{explanation}}
}
