// Package sync holds the wire messages exchanged by the ledger sync reactor.
// The layout follows sync.proto; the oneof in Message is represented by
// mutually exclusive optional fields, which encode identically.
package sync

import (
	proto "github.com/gogo/protobuf/proto"

	types "github.com/ledgersync/ledgersync/proto/ledgersync/types"
)

// StatusRequest asks a peer for its latest committed proof.
type StatusRequest struct{}

func (m *StatusRequest) Reset()         { *m = StatusRequest{} }
func (m *StatusRequest) String() string { return proto.CompactTextString(m) }
func (*StatusRequest) ProtoMessage()    {}

type StatusResponse struct {
	Header *types.LedgerProof `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
}

func (m *StatusResponse) Reset()         { *m = StatusResponse{} }
func (m *StatusResponse) String() string { return proto.CompactTextString(m) }
func (*StatusResponse) ProtoMessage()    {}

func (m *StatusResponse) GetHeader() *types.LedgerProof {
	if m != nil {
		return m.Header
	}
	return nil
}

// SyncRequest asks for the next committed batch after Header.
type SyncRequest struct {
	Header *types.LedgerProof `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
}

func (m *SyncRequest) Reset()         { *m = SyncRequest{} }
func (m *SyncRequest) String() string { return proto.CompactTextString(m) }
func (*SyncRequest) ProtoMessage()    {}

func (m *SyncRequest) GetHeader() *types.LedgerProof {
	if m != nil {
		return m.Header
	}
	return nil
}

type SyncResponse struct {
	TxnsAndProof *types.TxnsAndProof `protobuf:"bytes,1,opt,name=txns_and_proof,json=txnsAndProof,proto3" json:"txns_and_proof,omitempty"`
}

func (m *SyncResponse) Reset()         { *m = SyncResponse{} }
func (m *SyncResponse) String() string { return proto.CompactTextString(m) }
func (*SyncResponse) ProtoMessage()    {}

func (m *SyncResponse) GetTxnsAndProof() *types.TxnsAndProof {
	if m != nil {
		return m.TxnsAndProof
	}
	return nil
}

// LedgerStatusUpdate is pushed to peers after a local commit.
type LedgerStatusUpdate struct {
	Header *types.LedgerProof `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
}

func (m *LedgerStatusUpdate) Reset()         { *m = LedgerStatusUpdate{} }
func (m *LedgerStatusUpdate) String() string { return proto.CompactTextString(m) }
func (*LedgerStatusUpdate) ProtoMessage()    {}

func (m *LedgerStatusUpdate) GetHeader() *types.LedgerProof {
	if m != nil {
		return m.Header
	}
	return nil
}

// Message is the envelope for every message on the ledger sync channel.
// Exactly one field is set.
type Message struct {
	StatusRequest      *StatusRequest      `protobuf:"bytes,1,opt,name=status_request,json=statusRequest,proto3" json:"status_request,omitempty"`
	StatusResponse     *StatusResponse     `protobuf:"bytes,2,opt,name=status_response,json=statusResponse,proto3" json:"status_response,omitempty"`
	SyncRequest        *SyncRequest        `protobuf:"bytes,3,opt,name=sync_request,json=syncRequest,proto3" json:"sync_request,omitempty"`
	SyncResponse       *SyncResponse       `protobuf:"bytes,4,opt,name=sync_response,json=syncResponse,proto3" json:"sync_response,omitempty"`
	LedgerStatusUpdate *LedgerStatusUpdate `protobuf:"bytes,5,opt,name=ledger_status_update,json=ledgerStatusUpdate,proto3" json:"ledger_status_update,omitempty"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return proto.CompactTextString(m) }
func (*Message) ProtoMessage()    {}
