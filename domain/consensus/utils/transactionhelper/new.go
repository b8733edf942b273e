package transactionhelper

import (
	"github.com/kaspanet/go-secp256k1"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/txauth"
)

// NewCoinbaseTransaction returns a coinbase transaction paying value to
// address. The payload keeps coinbase transactions of different blocks
// apart, since they would otherwise share a transaction ID.
func NewCoinbaseTransaction(address externalapi.Address, value uint64, payload []byte) *externalapi.DomainTransaction {
	return &externalapi.DomainTransaction{
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: externalapi.DomainOutpoint{Index: externalapi.NullOutpointIndex},
			PublicKey:        []byte{},
			Signature:        []byte{},
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{Value: value, Address: address}},
		Payload: payload,
	}
}

// NewNativeTransaction returns a new unsigned transaction
func NewNativeTransaction(outpoints []*externalapi.DomainOutpoint,
	outputs []*externalapi.DomainTransactionOutput) *externalapi.DomainTransaction {

	inputs := make([]*externalapi.DomainTransactionInput, len(outpoints))
	for i, outpoint := range outpoints {
		inputs[i] = &externalapi.DomainTransactionInput{PreviousOutpoint: *outpoint}
	}
	return &externalapi.DomainTransaction{
		Inputs:  inputs,
		Outputs: outputs,
		Payload: []byte{},
	}
}

// NewSignedTransaction returns a transaction spending outpoints, which
// must all be owned by key, to outputs.
func NewSignedTransaction(key *secp256k1.SchnorrKeyPair, outpoints []*externalapi.DomainOutpoint,
	outputs []*externalapi.DomainTransactionOutput) (*externalapi.DomainTransaction, error) {

	transaction := NewNativeTransaction(outpoints, outputs)
	err := txauth.SignAllInputs(transaction, key)
	if err != nil {
		return nil, err
	}
	return transaction, nil
}
