package ruleerrors

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// These constants are used to identify a specific RuleError.
var (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists.
	ErrDuplicateBlock = newRuleError("ErrDuplicateBlock")

	// ErrEmptyProposer indicates a proposer block that references neither
	// transaction blocks nor proposer blocks.
	ErrEmptyProposer = newRuleError("ErrEmptyProposer")

	// ErrInvalidCoinbase indicates a transaction block whose first
	// transaction isn't a valid coinbase, or that holds more than one
	// coinbase.
	ErrInvalidCoinbase = newRuleError("ErrInvalidCoinbase")

	// ErrInvalidProofOfWork indicates a block hash that doesn't fall in the
	// sortition range of its declared role.
	ErrInvalidProofOfWork = newRuleError("ErrInvalidProofOfWork")

	// ErrBadContentHash indicates the header's content hash doesn't
	// commit to the block's content.
	ErrBadContentHash = newRuleError("ErrBadContentHash")

	// ErrInvalidChainNumber indicates a voter block for a voter chain that
	// doesn't exist.
	ErrInvalidChainNumber = newRuleError("ErrInvalidChainNumber")

	// ErrInvalidParent indicates a block whose parent isn't a proposer block.
	ErrInvalidParent = newRuleError("ErrInvalidParent")

	// ErrInvalidReference indicates a block referencing a block of the
	// wrong role, a voter block extending another chain, or a voter block
	// whose votes don't continue its parent's votes level by level.
	ErrInvalidReference = newRuleError("ErrInvalidReference")

	// ErrOrphanDropped indicates an orphan block was evicted from the
	// orphan pool before its dependencies arrived.
	ErrOrphanDropped = newRuleError("ErrOrphanDropped")

	// ErrInvalidAuthorization indicates an input whose public key or
	// signature doesn't authorize spending its previous output.
	ErrInvalidAuthorization = newRuleError("ErrInvalidAuthorization")

	// ErrSpendTooHigh indicates a transaction is attempting to spend more
	// value than the sum of all of its inputs.
	ErrSpendTooHigh = newRuleError("ErrSpendTooHigh")

	// ErrDuplicateOutput indicates a transaction whose outputs already
	// exist in the UTXO set.
	ErrDuplicateOutput = newRuleError("ErrDuplicateOutput")

	// ErrDuplicateTxInputs indicates a transaction references the same
	// input more than once.
	ErrDuplicateTxInputs = newRuleError("ErrDuplicateTxInputs")
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or transaction failed due to one of the many validation
// rules. The caller can use type assertions to determine if a failure was
// specifically due to a rule violation.
type RuleError struct {
	message string
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func newRuleError(message string) RuleError {
	return RuleError{message: message, inner: nil}
}

// IsRuleError returns whether err is, or wraps, a RuleError.
func IsRuleError(err error) bool {
	return errors.As(err, &RuleError{})
}

// ErrMissingTxOut indicates a transaction output referenced by an input
// either does not exist or has already been spent.
type ErrMissingTxOut struct {
	MissingOutpoints []*externalapi.DomainOutpoint
}

func (e ErrMissingTxOut) Error() string {
	return fmt.Sprintf("missing the following outpoint: %v", e.MissingOutpoints)
}

// NewErrMissingTxOut Creates a new ErrMissingTxOut error wrapped in a RuleError
func NewErrMissingTxOut(missingOutpoints []*externalapi.DomainOutpoint) error {
	return errors.WithStack(RuleError{
		message: "ErrMissingTxOut",
		inner:   ErrMissingTxOut{missingOutpoints},
	})
}

// ErrReorgSafetyViolation indicates that the votes on a finalized level
// moved to a different proposer block. The confirmation depth assumption
// no longer holds and the finalized leader is kept.
type ErrReorgSafetyViolation struct {
	Level           uint64
	FinalizedLeader *externalapi.DomainHash
	NewPlurality    *externalapi.DomainHash
}

func (e ErrReorgSafetyViolation) Error() string {
	return fmt.Sprintf("level %d was finalized with leader %s but the votes now elect %s",
		e.Level, e.FinalizedLeader, e.NewPlurality)
}

// NewErrReorgSafetyViolation creates a new ErrReorgSafetyViolation error wrapped in a RuleError
func NewErrReorgSafetyViolation(level uint64, finalizedLeader, newPlurality *externalapi.DomainHash) error {
	return errors.WithStack(RuleError{
		message: "ErrReorgSafetyViolation",
		inner:   ErrReorgSafetyViolation{level, finalizedLeader, newPlurality},
	})
}
