package externalapi

import (
	"fmt"
	"math"
)

// DomainTransaction is a transfer of value between addresses.
type DomainTransaction struct {
	Inputs  []*DomainTransactionInput
	Outputs []*DomainTransactionOutput
	Payload []byte
}

// DomainTransactionInput spends PreviousOutpoint. PublicKey and Signature
// authorize the spend and are not part of the transaction ID.
type DomainTransactionInput struct {
	PreviousOutpoint DomainOutpoint
	PublicKey        []byte
	Signature        []byte
}

// DomainTransactionOutput pays Value to Address.
type DomainTransactionOutput struct {
	Value   uint64
	Address Address
}

// DomainTransactionID represents the ID of a transaction
type DomainTransactionID DomainHash

// String stringifies a transaction ID.
func (id DomainTransactionID) String() string {
	return DomainHash(id).String()
}

// Equal returns whether id equals to other
func (id *DomainTransactionID) Equal(other *DomainTransactionID) bool {
	return (*DomainHash)(id).Equal((*DomainHash)(other))
}

// DomainOutpoint references an output of a previous transaction.
type DomainOutpoint struct {
	TransactionID DomainTransactionID
	Index         uint32
}

// NullOutpointIndex is the index of the previous outpoint of a coinbase input.
const NullOutpointIndex = math.MaxUint32

// NewDomainOutpoint instantiates a new DomainOutpoint with the given id and index
func NewDomainOutpoint(id *DomainTransactionID, index uint32) *DomainOutpoint {
	return &DomainOutpoint{
		TransactionID: *id,
		Index:         index,
	}
}

// IsNull returns whether the outpoint is the null outpoint spent by coinbase inputs.
func (op DomainOutpoint) IsNull() bool {
	return op.Index == NullOutpointIndex && (*DomainHash)(&op.TransactionID).IsZero()
}

// String stringifies an outpoint.
func (op DomainOutpoint) String() string {
	return fmt.Sprintf("%s:%d", op.TransactionID, op.Index)
}

// IsCoinbase returns whether tx has exactly one input, spending the null
// outpoint.
func (tx *DomainTransaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PreviousOutpoint.IsNull()
}

// HasNullInput returns whether any input of tx spends the null outpoint.
func (tx *DomainTransaction) HasNullInput() bool {
	for _, input := range tx.Inputs {
		if input.PreviousOutpoint.IsNull() {
			return true
		}
	}
	return false
}

// TotalOutputValue returns the sum of the outputs' values, and false if
// the sum overflows.
func (tx *DomainTransaction) TotalOutputValue() (uint64, bool) {
	total := uint64(0)
	for _, output := range tx.Outputs {
		if total+output.Value < total {
			return 0, false
		}
		total += output.Value
	}
	return total, true
}
