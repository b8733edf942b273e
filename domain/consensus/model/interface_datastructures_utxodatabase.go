package model

import "github.com/prism-dag/prismd/domain/consensus/model/externalapi"

// UTXODatabase is the UTXO set of the confirmed ledger
type UTXODatabase interface {
	ApplyTransaction(transaction *externalapi.DomainTransaction) (*externalapi.UTXODiff, error)
	Apply(transactions []*externalapi.DomainTransaction) (*ApplyResult, error)
	RevertTransaction(transaction *externalapi.DomainTransaction) (diff *externalapi.UTXODiff, wasApplied bool, err error)
	Revert(transactions []*externalapi.DomainTransaction) (*externalapi.UTXODiff, error)

	UTXOEntry(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error)
	IsUnspent(outpoint *externalapi.DomainOutpoint) (bool, error)
	Balance(address externalapi.Address) (uint64, error)
	UTXOsByAddress(address externalapi.Address) ([]*externalapi.OutpointAndUTXOEntryPair, error)
	Commitment() (*externalapi.DomainHash, error)
}

// ApplyResult is the outcome of applying a batch of transactions. Every
// transaction is applied or skipped on its own.
type ApplyResult struct {
	Applied []*externalapi.DomainTransaction
	Skipped []*SkippedTransaction
	Diff    *externalapi.UTXODiff
}

// SkippedTransaction is a transaction that a rule error kept out of the
// UTXO set
type SkippedTransaction struct {
	Transaction *externalapi.DomainTransaction
	Reason      error
}
