package ledgersync

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ledgersync/ledgersync/behaviour"
	"github.com/ledgersync/ledgersync/internal/p2p"
	"github.com/ledgersync/ledgersync/types"
)

// testOutbox records dispatched envelopes.
type testOutbox struct {
	mtx       sync.Mutex
	envelopes []Envelope
}

func (o *testOutbox) Dispatch(envelope Envelope) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.envelopes = append(o.envelopes, envelope)
}

// take returns the envelopes dispatched since the last call.
func (o *testOutbox) take() []Envelope {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	envelopes := o.envelopes
	o.envelopes = nil
	return envelopes
}

var envelopeOpts = cmp.Options{
	cmp.Comparer(func(a, b *types.LedgerProof) bool { return a.SameHeader(b) }),
	cmpopts.EquateEmpty(),
}

func requireEnvelopes(t *testing.T, want, got []Envelope) {
	t.Helper()
	if diff := cmp.Diff(want, got, envelopeOpts); diff != "" {
		t.Fatalf("unexpected envelopes (-want +got):\n%s", diff)
	}
}

// requireEnvelopesInAnyOrder is requireEnvelopes for envelopes dispatched to
// randomly chosen peers.
func requireEnvelopesInAnyOrder(t *testing.T, want, got []Envelope) {
	t.Helper()
	less := func(a, b Envelope) bool {
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Delay < b.Delay
	}
	if diff := cmp.Diff(want, got, envelopeOpts, cmpopts.SortSlices(less)); diff != "" {
		t.Fatalf("unexpected envelopes (-want +got):\n%s", diff)
	}
}

func newPeerSet(peers ...types.NodeID) *p2p.PeerSet {
	ps := p2p.NewPeerSet()
	for _, peer := range peers {
		ps.Apply(p2p.PeerUpdate{NodeID: peer, Status: p2p.PeerStatusUp})
	}
	return ps
}

func sortedPeers(peers []types.NodeID) []types.NodeID {
	out := append([]types.NodeID{}, peers...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// withSignatures returns a copy of batch whose tail carries sigs.
func withSignatures(batch *types.TxnsAndProof, sigs []types.TimestampedSignature) *types.TxnsAndProof {
	tail := &types.LedgerProof{
		Header:     batch.Tail.Header,
		Signatures: sigs,
	}
	return &types.TxnsAndProof{Txns: batch.Txns, Head: batch.Head, Tail: tail}
}

// withBadSignature returns a copy of batch with one corrupted tail signature.
func withBadSignature(batch *types.TxnsAndProof) *types.TxnsAndProof {
	sigs := make([]types.TimestampedSignature, len(batch.Tail.Signatures))
	copy(sigs, batch.Tail.Signatures)
	bad := append([]byte{}, sigs[0].Signature...)
	bad[0] ^= 0xff
	sigs[0].Signature = bad
	return withSignatures(batch, sigs)
}

// withTamperedTxn returns a copy of batch with a replaced first transaction.
func withTamperedTxn(batch *types.TxnsAndProof) *types.TxnsAndProof {
	txns := append(types.Txns{}, batch.Txns...)
	txns[0] = types.Txn("tampered")
	return &types.TxnsAndProof{Txns: txns, Head: batch.Head, Tail: batch.Tail}
}

func requireNoBadBehaviour(t *testing.T, reporter *behaviour.MockReporter, peer types.NodeID) {
	t.Helper()
	for _, b := range reporter.GetBehaviours(peer) {
		if b.IsBad() {
			t.Fatalf("peer %v reported for %v", peer, b)
		}
	}
}
