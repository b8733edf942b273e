package model

import "github.com/prism-dag/prismd/domain/consensus/model/externalapi"

// LedgerManager linearizes the decided proposer levels into the confirmed
// transaction ledger. It is driven by a single worker.
type LedgerManager interface {
	Start()
	Stop()
	NotifyLevelsChanged()
	Sync() error
	ConfirmedTransactions() []*externalapi.DomainTransactionID
	Levels() []*LedgerLevel
}

// LedgerLevel is what the ledger took from one decided level
type LedgerLevel struct {
	Level             uint64
	Leader            *externalapi.DomainHash
	Proposers         []*externalapi.DomainHash
	TransactionBlocks []*externalapi.DomainHash
	Applied           []*externalapi.DomainTransaction
	Skipped           []*SkippedTransaction
}

// LedgerUpdate is the effect of one ledger worker iteration
type LedgerUpdate struct {
	AddedTransactions   []*externalapi.DomainTransactionID
	RemovedTransactions []*externalapi.DomainTransactionID
	UTXODiff            *externalapi.UTXODiff
	LedgerLevel         uint64
}
