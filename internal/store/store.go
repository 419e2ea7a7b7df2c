package store

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogo/protobuf/proto"
	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
	"github.com/ledgersync/ledgersync/types"
)

var (
	// ErrLimitReached is returned when the next proof after the requested
	// start lies further away than the allowed batch size.
	ErrLimitReached = errors.New("next proof is beyond the batch limit")
	// ErrUnknownStart is returned when the requested start is not a point of
	// the local ledger.
	ErrUnknownStart = errors.New("start header is not part of the local ledger")
	// ErrNotContiguous is returned when a batch does not extend the last
	// stored proof.
	ErrNotContiguous = errors.New("batch does not extend the ledger")
)

/*
LedgerStore is a low level store for the committed ledger.

There are four kinds of records:
 - Txn:        every committed transaction with the accumulator after it
 - Proof:      every committed proof, keyed by epoch and version
 - EpochProof: the proof that opens an epoch, i.e. closes the previous one
 - LastProof:  the latest committed proof

The store always holds a contiguous run of transactions from version one up
to the last proof. LedgerStore is safe for concurrent use: every write goes
through a single atomic batch.
*/
type LedgerStore struct {
	db dbm.DB
}

// NewLedgerStore returns a new LedgerStore with the given DB.
func NewLedgerStore(db dbm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// SaveGenesis stores the proof of the empty ledger. It is a no-op when the
// store already holds a ledger starting from the same genesis.
func (ls *LedgerStore) SaveGenesis(genesis *types.LedgerProof) error {
	if err := genesis.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	if genesis.StateVersion() != 0 {
		return fmt.Errorf("genesis must be at version 0, got %d", genesis.StateVersion())
	}

	existing, err := ls.LoadProof(genesis.Epoch(), 0)
	if err != nil {
		return err
	}
	if existing != nil {
		if !existing.SameHeader(genesis) {
			return errors.New("store was initialized from a different genesis")
		}
		return nil
	}

	return ls.save(nil, nil, genesis)
}

// SaveBatch appends a verified batch. The head of the batch must have the
// same header as the last stored proof.
func (ls *LedgerStore) SaveBatch(batch *types.TxnsAndProof) error {
	if err := batch.ValidateBasic(); err != nil {
		return err
	}

	last, err := ls.LastProof()
	if err != nil {
		return err
	}
	if last == nil || !last.SameHeader(batch.Head) {
		return fmt.Errorf("%w: head %v is not the last proof %v", ErrNotContiguous, batch.Head, last)
	}
	if !batch.Tail.IsNewerThan(last) {
		return fmt.Errorf("%w: tail %v is not newer than %v", ErrNotContiguous, batch.Tail, last)
	}

	return ls.save(batch.Head, batch.Txns, batch.Tail)
}

func (ls *LedgerStore) save(head *types.LedgerProof, txns types.Txns, tail *types.LedgerProof) error {
	b := ls.db.NewBatch()
	defer b.Close()

	if head != nil {
		acc := head.Accumulator()
		for _, txn := range txns {
			acc = types.Accumulate(acc, txn.Hash())

			bz, err := proto.Marshal(&lsproto.CommittedTxn{Txn: txn, Accumulator: acc.ToProto()})
			if err != nil {
				return err
			}
			if err := b.Set(txnKey(acc.StateVersion), bz); err != nil {
				return err
			}
		}

		if !acc.Equal(tail.Accumulator()) {
			return fmt.Errorf("txns accumulate to %v, tail is at %v", acc, tail.Accumulator())
		}
	}

	pb, err := tail.ToProto()
	if err != nil {
		return err
	}
	bz, err := proto.Marshal(pb)
	if err != nil {
		return err
	}

	if err := b.Set(proofKey(tail.Epoch(), tail.StateVersion()), bz); err != nil {
		return err
	}
	if tail.IsEndOfEpoch() {
		if err := b.Set(epochProofKey(tail.Epoch()+1), bz); err != nil {
			return err
		}
	}
	if err := b.Set(lastProofKey(), bz); err != nil {
		return err
	}

	return b.WriteSync()
}

// LastProof returns the latest committed proof, or nil for an empty store.
func (ls *LedgerStore) LastProof() (*types.LedgerProof, error) {
	return ls.loadProof(lastProofKey())
}

// GetLastProof is LastProof.
func (ls *LedgerStore) GetLastProof() (*types.LedgerProof, error) {
	return ls.LastProof()
}

// GetEpochProof returns the proof that opened epoch, or nil if it is unknown.
func (ls *LedgerStore) GetEpochProof(epoch uint64) (*types.LedgerProof, error) {
	return ls.loadProof(epochProofKey(epoch))
}

// LoadProof returns the proof stored at the given epoch and version, or nil.
func (ls *LedgerStore) LoadProof(epoch, version uint64) (*types.LedgerProof, error) {
	return ls.loadProof(proofKey(epoch, version))
}

// LoadTxn returns the transaction committed at version and the accumulator
// after it.
func (ls *LedgerStore) LoadTxn(version uint64) (types.Txn, types.AccumulatorState, error) {
	bz, err := ls.db.Get(txnKey(version))
	if err != nil {
		return nil, types.AccumulatorState{}, err
	}
	if len(bz) == 0 {
		return nil, types.AccumulatorState{}, fmt.Errorf("no txn at version %d", version)
	}

	pb := new(lsproto.CommittedTxn)
	if err := proto.Unmarshal(bz, pb); err != nil {
		return nil, types.AccumulatorState{}, fmt.Errorf("unmarshal txn %d: %w", version, err)
	}

	acc, err := types.AccumulatorStateFromProto(pb.Accumulator)
	if err != nil {
		return nil, types.AccumulatorState{}, err
	}

	return pb.Txn, acc, nil
}

// GetNextCommittedBatch returns the transactions following start up to the
// furthest stored proof no more than maxCount versions ahead. A batch never
// crosses the end of an epoch. It returns nil when nothing newer than start
// is stored.
//
// When a proof is stored at the position of start, it must have the same
// header and becomes the head of the batch. Otherwise start must fall on the
// stored transaction log and must not close an epoch, since every epoch end
// is stored; the batch then starts at start itself.
func (ls *LedgerStore) GetNextCommittedBatch(start *types.LedgerProof, maxCount int) (*types.TxnsAndProof, error) {
	if maxCount <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", maxCount)
	}

	last, err := ls.LastProof()
	if err != nil {
		return nil, err
	}
	if last == nil || !last.IsNewerThan(start) {
		return nil, nil
	}
	if start.StateVersion() > last.StateVersion() {
		return nil, ErrUnknownStart
	}

	head, err := ls.knownStart(start)
	if err != nil {
		return nil, err
	}

	tail, err := ls.nextTail(start, uint64(maxCount))
	if err != nil || tail == nil {
		return nil, err
	}

	txns := make(types.Txns, 0, tail.StateVersion()-start.StateVersion())
	for v := start.StateVersion() + 1; v <= tail.StateVersion(); v++ {
		txn, _, err := ls.LoadTxn(v)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	return &types.TxnsAndProof{Txns: txns, Head: head, Tail: tail}, nil
}

func (ls *LedgerStore) knownStart(start *types.LedgerProof) (*types.LedgerProof, error) {
	stored, err := ls.LoadProof(start.Epoch(), start.StateVersion())
	if err != nil {
		return nil, err
	}
	if stored != nil {
		if !stored.SameHeader(start) {
			return nil, ErrUnknownStart
		}
		return stored, nil
	}

	if start.IsEndOfEpoch() {
		return nil, ErrUnknownStart
	}
	epochProof, err := ls.GetEpochProof(start.Epoch())
	if err != nil {
		return nil, err
	}
	if epochProof == nil || epochProof.StateVersion() >= start.StateVersion() {
		return nil, ErrUnknownStart
	}
	nextEpochProof, err := ls.GetEpochProof(start.Epoch() + 1)
	if err != nil {
		return nil, err
	}
	if nextEpochProof != nil && nextEpochProof.StateVersion() <= start.StateVersion() {
		return nil, ErrUnknownStart
	}
	if err := ls.checkKnown(start.Accumulator()); err != nil {
		return nil, err
	}
	return start, nil
}

func (ls *LedgerStore) checkKnown(acc types.AccumulatorState) error {
	var stored types.AccumulatorState
	if acc.StateVersion == 0 {
		genesis, err := ls.genesis()
		if err != nil {
			return err
		}
		stored = genesis.Accumulator()
	} else {
		_, a, err := ls.LoadTxn(acc.StateVersion)
		if err != nil {
			return err
		}
		stored = a
	}

	if !stored.Equal(acc) {
		return ErrUnknownStart
	}
	return nil
}

func (ls *LedgerStore) nextTail(start *types.LedgerProof, maxCount uint64) (*types.LedgerProof, error) {
	iter, err := ls.db.Iterator(
		proofKey(start.Epoch(), start.StateVersion()),
		proofKey(math.MaxUint64, math.MaxUint64),
	)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var (
		tail         *types.LedgerProof
		limitReached bool
	)

	for ; iter.Valid(); iter.Next() {
		proof, err := decodeProof(iter.Value())
		if err != nil {
			return nil, err
		}
		if !proof.IsNewerThan(start) {
			continue
		}
		if proof.StateVersion()-start.StateVersion() > maxCount {
			limitReached = true
			break
		}

		tail = proof
		if proof.IsEndOfEpoch() {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	if tail == nil && limitReached {
		return nil, ErrLimitReached
	}

	return tail, nil
}

func (ls *LedgerStore) genesis() (*types.LedgerProof, error) {
	iter, err := ls.db.Iterator(proofKey(0, 0), proofKey(math.MaxUint64, math.MaxUint64))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	if !iter.Valid() {
		if err := iter.Error(); err != nil {
			return nil, err
		}
		return nil, errors.New("store has no genesis")
	}

	return decodeProof(iter.Value())
}

func (ls *LedgerStore) loadProof(key []byte) (*types.LedgerProof, error) {
	bz, err := ls.db.Get(key)
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}

	return decodeProof(bz)
}

func decodeProof(bz []byte) (*types.LedgerProof, error) {
	pb := new(lsproto.LedgerProof)
	if err := proto.Unmarshal(bz, pb); err != nil {
		return nil, fmt.Errorf("unmarshal to LedgerProof failed: %w", err)
	}

	return types.LedgerProofFromProto(pb)
}

//---------------------------------- KEY ENCODING -----------------------------------------

// key prefixes
const (
	// prefixes are unique across all ledgersync db's
	prefixTxn        = int64(0)
	prefixProof      = int64(1)
	prefixEpochProof = int64(2)
	prefixLastProof  = int64(3)
)

func txnKey(version uint64) []byte {
	key, err := orderedcode.Append(nil, prefixTxn, version)
	if err != nil {
		panic(err)
	}
	return key
}

func proofKey(epoch, version uint64) []byte {
	key, err := orderedcode.Append(nil, prefixProof, epoch, version)
	if err != nil {
		panic(err)
	}
	return key
}

func epochProofKey(epoch uint64) []byte {
	key, err := orderedcode.Append(nil, prefixEpochProof, epoch)
	if err != nil {
		panic(err)
	}
	return key
}

func lastProofKey() []byte {
	key, err := orderedcode.Append(nil, prefixLastProof)
	if err != nil {
		panic(err)
	}
	return key
}
