package ledgersync

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogo/protobuf/proto"

	syncproto "github.com/ledgersync/ledgersync/proto/ledgersync/sync"
	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
	"github.com/ledgersync/ledgersync/types"
)

// Event is anything handled by LocalSyncService: local triggers, timeouts,
// ledger updates and messages received from peers.
type Event interface{}

// Local events.

// SyncCheckTrigger starts a sync check when the node is idle.
type SyncCheckTrigger struct{}

// SyncCheckReceiveStatusTimeout ends the sync check round it was scheduled
// for.
type SyncCheckReceiveStatusTimeout struct {
	Round uint64
}

// SyncRequestTimeout fires when the sync request RequestID, sent to Peer while
// the local ledger was at Header, has not been answered in time.
type SyncRequestTimeout struct {
	Peer      types.NodeID
	RequestID uint64
	Header    *types.LedgerProof
}

// SyncLedgerUpdateTimeout fires some time after a verified batch was handed to
// the ledger. If the ledger is still at StateVersion the batch was lost.
type SyncLedgerUpdateTimeout struct {
	StateVersion uint64
}

// LocalSyncRequest asks the driver to sync up to Target from TargetNodes.
type LocalSyncRequest struct {
	Target      *types.LedgerProof
	TargetNodes []types.NodeID
}

// Remote messages.

// StatusRequest asks a peer for its latest header.
type StatusRequest struct{}

// StatusResponse carries a peer's latest header.
type StatusResponse struct {
	Header *types.LedgerProof
}

// SyncRequest asks a peer for the batch following Header.
type SyncRequest struct {
	Header *types.LedgerProof
}

// SyncResponse carries a batch of committed transactions.
type SyncResponse struct {
	TxnsAndProof *types.TxnsAndProof
}

// LedgerStatusUpdate is pushed by a peer after it committed up to Header.
type LedgerStatusUpdate struct {
	Header *types.LedgerProof
}

// Envelope is a message leaving the driver. Messages with an empty To are
// local events delivered back to the driver after Delay; the others are sent
// to peer To right away.
type Envelope struct {
	To      types.NodeID
	Delay   time.Duration
	Message Event
}

// IsLocal reports whether the envelope is addressed to the local node.
func (e Envelope) IsLocal() bool {
	return e.To == ""
}

func (e Envelope) String() string {
	if e.IsLocal() {
		return fmt.Sprintf("Envelope{local %T in %v}", e.Message, e.Delay)
	}
	return fmt.Sprintf("Envelope{%T to %s}", e.Message, e.To.ShortString())
}

// Outbox is where LocalSyncService and RemoteSyncService put everything they
// want sent or scheduled. Dispatch must not block.
type Outbox interface {
	Dispatch(Envelope)
}

//-----------------------------------------------------------------------------
// wire conversion

// EncodeMessage converts a remote message to its wire form.
func EncodeMessage(msg Event) (proto.Message, error) {
	switch msg := msg.(type) {
	case StatusRequest:
		return &syncproto.StatusRequest{}, nil

	case StatusResponse:
		header, err := msg.Header.ToProto()
		if err != nil {
			return nil, err
		}
		return &syncproto.StatusResponse{Header: header}, nil

	case SyncRequest:
		header, err := msg.Header.ToProto()
		if err != nil {
			return nil, err
		}
		return &syncproto.SyncRequest{Header: header}, nil

	case SyncResponse:
		if msg.TxnsAndProof == nil {
			return nil, errors.New("sync response without txns and proof")
		}
		tp, err := msg.TxnsAndProof.ToProto()
		if err != nil {
			return nil, err
		}
		return &syncproto.SyncResponse{TxnsAndProof: tp}, nil

	case LedgerStatusUpdate:
		header, err := msg.Header.ToProto()
		if err != nil {
			return nil, err
		}
		return &syncproto.LedgerStatusUpdate{Header: header}, nil

	default:
		return nil, fmt.Errorf("unknown message: %T", msg)
	}
}

// DecodeMessage converts a received wire message to its domain form and
// performs stateless validation on it.
func DecodeMessage(pb proto.Message) (Event, error) {
	switch pb := pb.(type) {
	case *syncproto.StatusRequest:
		return StatusRequest{}, nil

	case *syncproto.StatusResponse:
		header, err := decodeHeader(pb.Header)
		if err != nil {
			return nil, err
		}
		return StatusResponse{Header: header}, nil

	case *syncproto.SyncRequest:
		header, err := decodeHeader(pb.Header)
		if err != nil {
			return nil, err
		}
		return SyncRequest{Header: header}, nil

	case *syncproto.SyncResponse:
		tp, err := types.TxnsAndProofFromProto(pb.TxnsAndProof)
		if err != nil {
			return nil, err
		}
		if err := tp.ValidateBasic(); err != nil {
			return nil, err
		}
		return SyncResponse{TxnsAndProof: tp}, nil

	case *syncproto.LedgerStatusUpdate:
		header, err := decodeHeader(pb.Header)
		if err != nil {
			return nil, err
		}
		return LedgerStatusUpdate{Header: header}, nil

	default:
		return nil, fmt.Errorf("unknown message: %T", pb)
	}
}

func decodeHeader(pb *lsproto.LedgerProof) (*types.LedgerProof, error) {
	header, err := types.LedgerProofFromProto(pb)
	if err != nil {
		return nil, err
	}
	if err := header.ValidateBasic(); err != nil {
		return nil, err
	}
	return header, nil
}
