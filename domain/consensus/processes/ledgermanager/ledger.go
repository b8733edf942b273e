package ledgermanager

import (
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
	"github.com/prism-dag/prismd/domain/consensus/utils/hashset"
	"github.com/prism-dag/prismd/infrastructure/logger"
)

// update brings the ledger in line with the decided prefix of the proposer
// tree. Levels whose leader changed are reverted, top down, and the ledger
// is then extended level by level. onUpdate is called after the lock is
// released so that subscribers may read the ledger.
func (lm *ledgerManager) update() error {
	onEnd := logger.LogAndMeasureExecutionTime(log, "ledgerManager.update")
	defer onEnd()

	update, err := lm.applyDecidedPrefix()
	if update != nil && lm.onUpdate != nil {
		lm.onUpdate(update)
	}
	return err
}

// applyDecidedPrefix returns a nil update if the ledger didn't change. On
// error, the update covers the levels that were changed before it.
func (lm *ledgerManager) applyDecidedPrefix() (*model.LedgerUpdate, error) {
	leaders, _ := lm.proposerTree.DecidedPrefix()

	lm.lock.Lock()
	defer lm.lock.Unlock()

	firstChanged := 1
	for firstChanged < len(lm.levels) && firstChanged < len(leaders) &&
		lm.levels[firstChanged].Leader.Equal(leaders[firstChanged]) {
		firstChanged++
	}

	update := &model.LedgerUpdate{UTXODiff: &externalapi.UTXODiff{}}
	changed := false
	err := func() error {
		for len(lm.levels) > firstChanged {
			err := lm.revertTopLevel(update)
			if err != nil {
				return err
			}
			changed = true
		}
		for level := firstChanged; level < len(leaders); level++ {
			err := lm.extend(uint64(level), leaders[level], update)
			if err != nil {
				return err
			}
			changed = true
		}
		return nil
	}()
	if !changed {
		return nil, err
	}

	update.LedgerLevel = uint64(len(lm.levels) - 1)
	log.Debugf("Ledger moved to level %d: %d transactions added, %d removed",
		update.LedgerLevel, len(update.AddedTransactions), len(update.RemovedTransactions))
	return update, err
}

func (lm *ledgerManager) revertTopLevel(update *model.LedgerUpdate) error {
	top := lm.levels[len(lm.levels)-1]
	diff, err := lm.utxoDatabase.Revert(top.Applied)
	if err != nil {
		return err
	}
	update.UTXODiff.Append(diff)
	update.RemovedTransactions = append(update.RemovedTransactions, transactionIDsOf(top.Applied)...)

	for _, proposer := range top.Proposers {
		lm.includedProposers.Remove(proposer)
	}
	for _, transactionBlock := range top.TransactionBlocks {
		lm.includedTransactionBlocks.Remove(transactionBlock)
	}
	lm.levels = lm.levels[:len(lm.levels)-1]
	log.Debugf("Ledger level %d with leader %s reverted", top.Level, top.Leader)
	return nil
}

func (lm *ledgerManager) extend(level uint64, leader *externalapi.DomainHash, update *model.LedgerUpdate) error {
	ledgerLevel := &model.LedgerLevel{
		Level:  level,
		Leader: leader,
	}

	visited := hashset.New()
	err := lm.collectProposers(leader, visited, &ledgerLevel.Proposers)
	if err != nil {
		return err
	}

	var transactions []*externalapi.DomainTransaction
	levelTransactionBlocks := hashset.New()
	for _, proposer := range ledgerLevel.Proposers {
		block, ok := lm.blockStore.Block(proposer)
		if !ok {
			return errors.Errorf("proposer block %s is missing from the block store", proposer)
		}
		for _, transactionRef := range block.Content.(*externalapi.ProposerContent).TransactionRefs {
			if lm.includedTransactionBlocks.Contains(transactionRef) || levelTransactionBlocks.Contains(transactionRef) {
				continue
			}
			transactionBlock, ok := lm.blockStore.Block(transactionRef)
			if !ok {
				return errors.Errorf("transaction block %s is missing from the block store", transactionRef)
			}
			levelTransactionBlocks.Add(transactionRef)
			ledgerLevel.TransactionBlocks = append(ledgerLevel.TransactionBlocks, transactionRef)
			transactions = append(transactions,
				transactionBlock.Content.(*externalapi.TransactionContent).Transactions...)
		}
	}

	result, err := lm.utxoDatabase.Apply(transactions)
	if err != nil {
		// Undo whatever got applied so the level can be retried from scratch
		if result != nil && len(result.Applied) > 0 {
			_, revertErr := lm.utxoDatabase.Revert(result.Applied)
			if revertErr != nil {
				return errors.Wrapf(err, "failed to revert %d transactions of level %d: %s",
					len(result.Applied), level, revertErr)
			}
		}
		return errors.Wrapf(err, "failed to apply level %d", level)
	}

	for _, proposer := range ledgerLevel.Proposers {
		lm.includedProposers.Add(proposer)
	}
	for _, transactionBlock := range ledgerLevel.TransactionBlocks {
		lm.includedTransactionBlocks.Add(transactionBlock)
	}
	for _, skipped := range result.Skipped {
		logSkippedTransaction(level, skipped)
	}
	ledgerLevel.Applied = result.Applied
	ledgerLevel.Skipped = result.Skipped
	lm.levels = append(lm.levels, ledgerLevel)

	update.UTXODiff.Append(result.Diff)
	update.AddedTransactions = append(update.AddedTransactions, transactionIDsOf(result.Applied)...)
	return nil
}

// collectProposers appends to proposers, in post order, every proposer block
// reachable from blockHash through proposer references that isn't in the
// ledger yet. References are visited in hash order.
func (lm *ledgerManager) collectProposers(blockHash *externalapi.DomainHash, visited hashset.HashSet,
	proposers *[]*externalapi.DomainHash) error {

	if visited.Contains(blockHash) || lm.includedProposers.Contains(blockHash) {
		return nil
	}
	visited.Add(blockHash)

	block, ok := lm.blockStore.Block(blockHash)
	if !ok {
		return errors.Errorf("proposer block %s is missing from the block store", blockHash)
	}
	references := externalapi.CloneHashes(block.Content.(*externalapi.ProposerContent).ProposerRefs)
	externalapi.SortHashes(references)
	for _, reference := range references {
		err := lm.collectProposers(reference, visited, proposers)
		if err != nil {
			return err
		}
	}
	*proposers = append(*proposers, blockHash)
	return nil
}

func logSkippedTransaction(level uint64, skipped *model.SkippedTransaction) {
	transactionID := consensushashing.TransactionID(skipped.Transaction)
	var missingTxOut ruleerrors.ErrMissingTxOut
	if errors.As(skipped.Reason, &missingTxOut) {
		log.Warnf("DoubleSpendSkipped: transaction %s at level %d spends %v, which is "+
			"already spent or doesn't exist", transactionID, level, missingTxOut.MissingOutpoints)
		return
	}
	log.Warnf("Transaction %s at level %d skipped: %s", transactionID, level, skipped.Reason)
}

func transactionIDsOf(transactions []*externalapi.DomainTransaction) []*externalapi.DomainTransactionID {
	return consensushashing.TransactionIDs(transactions)
}
