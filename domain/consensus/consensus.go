package consensus

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
	"github.com/prism-dag/prismd/domain/consensus/utils/hashset"
	"github.com/prism-dag/prismd/infrastructure/logger"
)

// Consensus maintains the current core state of the node
type Consensus interface {
	ValidateAndInsertBlock(block *externalapi.DomainBlock) (*InsertResult, error)

	GetBlock(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, bool)
	HasBlock(blockHash *externalapi.DomainHash) bool
	BlockCount() int
	OrphanCount() int
	Children(blockHash *externalapi.DomainHash) []*externalapi.DomainHash
	GenesisHash() *externalapi.DomainHash

	VoterChainBestNode(chainID uint16) (*model.VoterNode, error)
	LevelStatus(level uint64) model.LevelStatus
	LevelInfo(level uint64) (*model.LevelInfo, bool)
	Leader(level uint64) (*externalapi.DomainHash, bool)

	Balance(address externalapi.Address) (uint64, error)
	IsUnspent(outpoint *externalapi.DomainOutpoint) (bool, error)
	UTXOCommitment() (*externalapi.DomainHash, error)
	ConfirmedTransactions() []*externalapi.DomainTransactionID
	LedgerLevels() []*model.LedgerLevel
	SyncLedger() error

	Subscribe(callback NotificationCallback)
	Close()
}

// InsertResult is the outcome of ValidateAndInsertBlock. Accepted holds the
// inserted block followed by every orphan it unlocked, in connection order.
type InsertResult struct {
	IsOrphan bool
	Accepted []*externalapi.DomainHash
}

type consensus struct {
	lock      sync.Mutex
	requester model.BlockRequester

	blockStore   model.BlockStore
	orphanPool   model.OrphanPool
	utxoDatabase model.UTXODatabase

	blockValidator model.BlockValidator
	voterChains    []model.VoterChain
	proposerTree   model.ProposerTree
	ledgerManager  model.LedgerManager

	genesisHash *externalapi.DomainHash

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// ValidateAndInsertBlock validates the given block and, if valid, inserts it.
// A block with missing dependencies is kept as an orphan until they arrive.
// It is the single entry point for blocks received from the network and
// blocks mined locally, and it is safe for concurrent use.
func (s *consensus) ValidateAndInsertBlock(block *externalapi.DomainBlock) (*InsertResult, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "ValidateAndInsertBlock")
	defer onEnd()

	blockHash, err := s.blockValidator.ValidateBlockInIsolation(block)
	if err != nil {
		return nil, err
	}

	var pending pendingNotifications
	s.lock.Lock()
	result, err := s.insertBlockNoLock(blockHash, block, &pending)
	s.lock.Unlock()

	s.sendPendingNotifications(pending)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *consensus) insertBlockNoLock(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock,
	pending *pendingNotifications) (*InsertResult, error) {

	// Another caller could have inserted the block since it was validated
	if s.blockStore.Has(blockHash) || s.orphanPool.Has(blockHash) {
		return nil, errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s already exists", blockHash)
	}
	s.orphanPool.ExpireOrphans()

	missing := s.missingDependencies(block)
	if len(missing) > 0 {
		s.addOrphan(blockHash, block, missing)
		return &InsertResult{IsOrphan: true}, nil
	}

	err := s.connectBlock(blockHash, block, false, pending)
	if err != nil {
		return nil, err
	}
	accepted := []*externalapi.DomainHash{blockHash}
	accepted = append(accepted, s.resolveOrphans(blockHash, pending)...)

	s.evaluateLevels(pending)
	return &InsertResult{Accepted: accepted}, nil
}

func (s *consensus) missingDependencies(block *externalapi.DomainBlock) []*externalapi.DomainHash {
	var missing []*externalapi.DomainHash
	seen := hashset.New()
	for _, dependency := range block.Dependencies() {
		if seen.Contains(dependency) {
			continue
		}
		seen.Add(dependency)
		if !s.blockStore.Has(dependency) {
			missing = append(missing, dependency)
		}
	}
	return missing
}

func (s *consensus) addOrphan(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock,
	missing []*externalapi.DomainHash) {

	log.Infof("Adding orphan block %s, missing %d dependencies", blockHash, len(missing))
	s.orphanPool.Add(blockHash, block, missing)
	if s.requester == nil {
		return
	}
	for _, dependency := range missing {
		if !s.orphanPool.Has(dependency) {
			s.requester.RequestMissing(dependency)
		}
	}
}

// connectBlock inserts a block whose dependencies are all in the block
// store, and hands it to the process that tracks its role
func (s *consensus) connectBlock(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock,
	wasUnorphaned bool, pending *pendingNotifications) error {

	err := s.blockValidator.ValidateBlockInContext(block)
	if err != nil {
		return err
	}

	switch content := block.Content.(type) {
	case *externalapi.ProposerContent:
		s.blockStore.Insert(blockHash, block)
		_, err := s.proposerTree.AddProposer(blockHash, block.Header.ParentHash)
		if err != nil {
			return err
		}

	case *externalapi.VoterContent:
		votes := make([]*model.Vote, len(content.Votes))
		for i, votedBlock := range content.Votes {
			level, ok := s.proposerTree.Level(votedBlock)
			if !ok {
				return errors.Errorf("voted block %s is not in the proposer tree", votedBlock)
			}
			votes[i] = &model.Vote{Proposer: votedBlock, ProposerLevel: level}
		}
		voterChain := s.voterChains[content.ChainNumber]
		err := voterChain.ValidateVotes(content.VoterParent, votes)
		if err != nil {
			return err
		}
		s.blockStore.Insert(blockHash, block)
		delta, err := voterChain.AddNode(&model.VoterNode{
			Hash:   blockHash,
			Parent: content.VoterParent,
			Votes:  votes,
		})
		if err != nil {
			return err
		}
		err = s.proposerTree.ApplyVoteDelta(delta)
		if err != nil {
			return err
		}

	case *externalapi.TransactionContent:
		s.blockStore.Insert(blockHash, block)
	}

	log.Debugf("Accepted %s block %s", block.Role(), blockHash)
	pending.add(NTBlockAccepted, &BlockAcceptedNotificationData{
		Block:         block,
		BlockHash:     blockHash,
		WasUnorphaned: wasUnorphaned,
	})
	return nil
}

// resolveOrphans connects every orphan that blockHash unlocked, directly or
// through other unlocked orphans, in FIFO order. An orphan that fails to
// connect is dropped.
func (s *consensus) resolveOrphans(blockHash *externalapi.DomainHash, pending *pendingNotifications) []*externalapi.DomainHash {
	var accepted []*externalapi.DomainHash
	queue := []*externalapi.DomainHash{blockHash}
	for len(queue) > 0 {
		var dependency *externalapi.DomainHash
		dependency, queue = queue[0], queue[1:]

		for _, orphan := range s.orphanPool.ResolveDependency(dependency) {
			err := s.connectBlock(orphan.Hash, orphan.Block, true, pending)
			if err != nil {
				log.Warnf("Dropping orphan block %s: %s", orphan.Hash, err)
				continue
			}
			accepted = append(accepted, orphan.Hash)
			queue = append(queue, orphan.Hash)
		}
	}
	return accepted
}

func (s *consensus) evaluateLevels(pending *pendingNotifications) {
	decisions, violations := s.proposerTree.Evaluate()
	for _, decision := range decisions {
		pending.add(NTLevelDecided, decision)
	}
	for _, violation := range violations {
		pending.add(NTReorgSafetyViolation, &ReorgSafetyViolationNotificationData{Err: violation})
	}
	if len(decisions) > 0 {
		s.ledgerManager.NotifyLevelsChanged()
	}
}

func (s *consensus) GetBlock(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, bool) {
	return s.blockStore.Block(blockHash)
}

func (s *consensus) HasBlock(blockHash *externalapi.DomainHash) bool {
	return s.blockStore.Has(blockHash)
}

// BlockCount returns the number of blocks in the block store, genesis
// blocks included and orphans excluded
func (s *consensus) BlockCount() int {
	return s.blockStore.Count()
}

func (s *consensus) OrphanCount() int {
	return s.orphanPool.Count()
}

func (s *consensus) Children(blockHash *externalapi.DomainHash) []*externalapi.DomainHash {
	return s.blockStore.Children(blockHash)
}

func (s *consensus) GenesisHash() *externalapi.DomainHash {
	return s.genesisHash
}

func (s *consensus) VoterChainBestNode(chainID uint16) (*model.VoterNode, error) {
	if int(chainID) >= len(s.voterChains) {
		return nil, errors.Errorf("voter chain %d doesn't exist", chainID)
	}
	return s.voterChains[chainID].BestNode(), nil
}

func (s *consensus) LevelStatus(level uint64) model.LevelStatus {
	info, ok := s.proposerTree.LevelInfo(level)
	if !ok {
		return model.LevelStatusEmpty
	}
	return info.Status
}

func (s *consensus) LevelInfo(level uint64) (*model.LevelInfo, bool) {
	return s.proposerTree.LevelInfo(level)
}

// Leader returns the leader of a decided level
func (s *consensus) Leader(level uint64) (*externalapi.DomainHash, bool) {
	info, ok := s.proposerTree.LevelInfo(level)
	if !ok || info.Status != model.LevelStatusDecided {
		return nil, false
	}
	return info.Leader, true
}

func (s *consensus) Balance(address externalapi.Address) (uint64, error) {
	return s.utxoDatabase.Balance(address)
}

func (s *consensus) IsUnspent(outpoint *externalapi.DomainOutpoint) (bool, error) {
	return s.utxoDatabase.IsUnspent(outpoint)
}

func (s *consensus) UTXOCommitment() (*externalapi.DomainHash, error) {
	return s.utxoDatabase.Commitment()
}

func (s *consensus) ConfirmedTransactions() []*externalapi.DomainTransactionID {
	return s.ledgerManager.ConfirmedTransactions()
}

func (s *consensus) LedgerLevels() []*model.LedgerLevel {
	return s.ledgerManager.Levels()
}

// SyncLedger waits until the ledger caught up with every decision made so
// far
func (s *consensus) SyncLedger() error {
	return s.ledgerManager.Sync()
}

// Close stops the ledger worker. The database is owned by the caller and
// stays open.
func (s *consensus) Close() {
	s.ledgerManager.Stop()
}
