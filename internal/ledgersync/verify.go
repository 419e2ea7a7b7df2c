package ledgersync

import (
	"errors"
	"fmt"

	"github.com/ledgersync/ledgersync/types"
)

// ErrAccumulatorMismatch is returned when a batch's transactions do not lead
// from its head accumulator to its tail accumulator.
var ErrAccumulatorMismatch = errors.New("transactions do not accumulate to the tail accumulator")

// ErrVerificationFailed is returned when a sync response is rejected by one
// of the verification stages.
type ErrVerificationFailed struct {
	Stage  string
	Reason error
}

func (e ErrVerificationFailed) Error() string {
	return fmt.Sprintf("%s verification failed: %v", e.Stage, e.Reason)
}

func (e ErrVerificationFailed) Unwrap() error {
	return e.Reason
}

// SyncResponseVerifier is one stage of sync response verification.
type SyncResponseVerifier interface {
	Verify(batch *types.TxnsAndProof) error
}

// ValidatorSetVerifier checks that the validators of the current epoch holding
// more than two thirds of the voting power signed the tail proof. The
// signatures themselves are not checked.
type ValidatorSetVerifier struct {
	validators *types.ValidatorSet
}

func NewValidatorSetVerifier(validators *types.ValidatorSet) *ValidatorSetVerifier {
	return &ValidatorSetVerifier{validators: validators}
}

// SetValidatorSet replaces the validator set, at the start of a new epoch.
func (v *ValidatorSetVerifier) SetValidatorSet(validators *types.ValidatorSet) {
	v.validators = validators
}

func (v *ValidatorSetVerifier) ValidatorSet() *types.ValidatorSet {
	return v.validators
}

func (v *ValidatorSetVerifier) Verify(batch *types.TxnsAndProof) error {
	if v.validators == nil {
		return errors.New("no validator set")
	}
	return v.validators.VerifyQuorum(batch.Tail.Signatures)
}

// SignaturesVerifier checks every signature of the tail proof against the
// vote data of the tail header.
type SignaturesVerifier struct{}

func (SignaturesVerifier) Verify(batch *types.TxnsAndProof) error {
	return batch.Tail.VerifySignatures()
}

// AccumulatorVerifier checks that folding the transaction hashes onto the head
// accumulator yields the tail accumulator.
type AccumulatorVerifier struct{}

func (AccumulatorVerifier) Verify(batch *types.TxnsAndProof) error {
	if !types.VerifyAccumulator(batch.Head.Accumulator(), batch.Txns.Hashes(), batch.Tail.Accumulator()) {
		return ErrAccumulatorMismatch
	}
	return nil
}

// Verifier chains the three verification stages. A batch is accepted only if
// every stage accepts it; the first rejection stops verification.
type Verifier struct {
	validators *ValidatorSetVerifier
	stages     []verificationStage
}

type verificationStage struct {
	name     string
	verifier SyncResponseVerifier
}

// NewVerifier returns a Verifier checking quorum against validators.
func NewVerifier(validators *types.ValidatorSet) *Verifier {
	vsv := NewValidatorSetVerifier(validators)
	return NewVerifierWithStages(vsv, SignaturesVerifier{}, AccumulatorVerifier{})
}

// NewVerifierWithStages builds a Verifier from custom stages, which run in
// the order given.
func NewVerifierWithStages(
	validators *ValidatorSetVerifier,
	signatures SyncResponseVerifier,
	accumulator SyncResponseVerifier,
) *Verifier {
	return &Verifier{
		validators: validators,
		stages: []verificationStage{
			{name: "validator set", verifier: validators},
			{name: "signature", verifier: signatures},
			{name: "accumulator", verifier: accumulator},
		},
	}
}

// SetValidatorSet replaces the validator set used by the quorum stage.
func (v *Verifier) SetValidatorSet(validators *types.ValidatorSet) {
	v.validators.SetValidatorSet(validators)
}

// ValidatorSet returns the validator set used by the quorum stage.
func (v *Verifier) ValidatorSet() *types.ValidatorSet {
	return v.validators.ValidatorSet()
}

// Verify runs the stages in order and returns an ErrVerificationFailed naming
// the first stage that rejected the batch.
func (v *Verifier) Verify(batch *types.TxnsAndProof) error {
	if err := batch.ValidateBasic(); err != nil {
		return ErrVerificationFailed{Stage: "basic", Reason: err}
	}
	for _, stage := range v.stages {
		if err := stage.verifier.Verify(batch); err != nil {
			return ErrVerificationFailed{Stage: stage.name, Reason: err}
		}
	}
	return nil
}
