package consensushashing

import (
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/hashes"
	"github.com/prism-dag/prismd/domain/consensus/utils/serialization"
)

// TransactionID generates the Hash for the transaction without the
// public keys and signatures of its inputs. This is also the message
// every input signs.
func TransactionID(tx *externalapi.DomainTransaction) *externalapi.DomainTransactionID {
	writer := hashes.NewTransactionIDWriter()
	err := serialization.SerializeTransaction(writer, tx, false)
	if err != nil {
		// this writer never return errors (no allocations or possible failures) so errors can only come from validity checks,
		// and we assume we never construct malformed transactions.
		panic(errors.Wrap(err, "TransactionID() failed. this should never fail for structurally-valid transactions"))
	}
	return (*externalapi.DomainTransactionID)(writer.Finalize())
}

// TransactionIDs returns the IDs of the given transactions.
func TransactionIDs(txs []*externalapi.DomainTransaction) []*externalapi.DomainTransactionID {
	ids := make([]*externalapi.DomainTransactionID, len(txs))
	for i, tx := range txs {
		ids[i] = TransactionID(tx)
	}
	return ids
}
