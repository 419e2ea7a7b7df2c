package sync

import (
	"errors"
	"fmt"

	"github.com/gogo/protobuf/proto"
)

// Wrap implements the p2p Wrapper interface and wraps a ledger sync message.
func (m *Message) Wrap(pb proto.Message) error {
	m.Reset()

	switch msg := pb.(type) {
	case *StatusRequest:
		m.StatusRequest = msg

	case *StatusResponse:
		m.StatusResponse = msg

	case *SyncRequest:
		m.SyncRequest = msg

	case *SyncResponse:
		m.SyncResponse = msg

	case *LedgerStatusUpdate:
		m.LedgerStatusUpdate = msg

	default:
		return fmt.Errorf("unknown message: %T", msg)
	}

	return nil
}

// Unwrap implements the p2p Wrapper interface and unwraps a wrapped ledger
// sync message.
func (m *Message) Unwrap() (proto.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	switch {
	case m.StatusRequest != nil:
		return m.StatusRequest, nil

	case m.StatusResponse != nil:
		return m.StatusResponse, nil

	case m.SyncRequest != nil:
		return m.SyncRequest, nil

	case m.SyncResponse != nil:
		return m.SyncResponse, nil

	default:
		return m.LedgerStatusUpdate, nil
	}
}

// Validate checks that exactly one message is set and that it carries the
// fields its handler dereferences. Semantic validation happens when the
// message is converted into domain types.
func (m *Message) Validate() error {
	if m == nil {
		return errors.New("message cannot be nil")
	}

	set := 0
	for _, present := range []bool{
		m.StatusRequest != nil,
		m.StatusResponse != nil,
		m.SyncRequest != nil,
		m.SyncResponse != nil,
		m.LedgerStatusUpdate != nil,
	} {
		if present {
			set++
		}
	}

	switch {
	case set == 0:
		return errors.New("empty message")
	case set > 1:
		return fmt.Errorf("message sets %d fields, expected exactly one", set)
	}

	switch {
	case m.StatusResponse != nil && m.StatusResponse.Header == nil:
		return errors.New("status response without header")
	case m.SyncRequest != nil && m.SyncRequest.Header == nil:
		return errors.New("sync request without header")
	case m.SyncResponse != nil && m.SyncResponse.TxnsAndProof == nil:
		return errors.New("sync response without txns and proof")
	case m.LedgerStatusUpdate != nil && m.LedgerStatusUpdate.Header == nil:
		return errors.New("ledger status update without header")
	}

	return nil
}
