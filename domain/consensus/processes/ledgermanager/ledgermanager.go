package ledgermanager

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/hashset"
	"github.com/prism-dag/prismd/util/panics"
)

var spawn = panics.GoroutineWrapperFunc(log)

// ErrStopped is returned by Sync once the ledger manager was stopped
var ErrStopped = errors.New("ledger manager stopped")

// levelEvent asks the worker to catch up with the proposer tree. When done
// is not nil the worker reports the outcome of its latest update on it.
type levelEvent struct {
	done chan error
}

type ledgerManager struct {
	blockStore   model.BlockStore
	proposerTree model.ProposerTree
	utxoDatabase model.UTXODatabase
	onUpdate     func(update *model.LedgerUpdate)

	events    chan *levelEvent
	quit      chan struct{}
	finished  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	// The fields below are written by the worker alone
	lock                      sync.RWMutex
	levels                    []*model.LedgerLevel
	includedProposers         hashset.HashSet
	includedTransactionBlocks hashset.HashSet
}

// New instantiates a new LedgerManager. The ledger starts with the genesis
// level; onUpdate, if not nil, is called by the worker after every update
// that changed the ledger.
func New(blockStore model.BlockStore,
	proposerTree model.ProposerTree,
	utxoDatabase model.UTXODatabase,
	genesisHash *externalapi.DomainHash,
	queueSize int,
	onUpdate func(update *model.LedgerUpdate)) model.LedgerManager {

	genesisLevel := &model.LedgerLevel{
		Level:             0,
		Leader:            genesisHash,
		Proposers:         []*externalapi.DomainHash{genesisHash},
		TransactionBlocks: []*externalapi.DomainHash{},
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &ledgerManager{
		blockStore:   blockStore,
		proposerTree: proposerTree,
		utxoDatabase: utxoDatabase,
		onUpdate:     onUpdate,

		events:   make(chan *levelEvent, queueSize),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),

		levels:                    []*model.LedgerLevel{genesisLevel},
		includedProposers:         hashset.NewFromSlice(genesisHash),
		includedTransactionBlocks: hashset.New(),
	}
}

// Start starts the ledger worker
func (lm *ledgerManager) Start() {
	lm.startOnce.Do(func() {
		spawn("ledgerManager.worker", lm.worker)
	})
}

// Stop processes the events that are already queued, then stops the
// worker and waits for it to exit
func (lm *ledgerManager) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.quit)
	})
	// A worker that never started can't close finished
	lm.startOnce.Do(func() {
		close(lm.finished)
	})
	<-lm.finished
}

func (lm *ledgerManager) worker() {
	defer close(lm.finished)
	for {
		select {
		case event := <-lm.events:
			lm.handleEvent(event)
		case <-lm.quit:
			for {
				select {
				case event := <-lm.events:
					lm.handleEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (lm *ledgerManager) handleEvent(event *levelEvent) {
	err := lm.update()
	if err != nil {
		log.Errorf("Ledger update failed: %+v", err)
	}

	if event.done != nil {
		event.done <- err
	}
}

// NotifyLevelsChanged tells the worker that the decided levels of the
// proposer tree changed. Since every update catches up with the whole
// tree, a notification is dropped when the queue is already full.
func (lm *ledgerManager) NotifyLevelsChanged() {
	select {
	case <-lm.quit:
	case lm.events <- &levelEvent{}:
	default:
	}
}

// Sync waits until the worker caught up with the proposer tree and returns
// the error of its latest update
func (lm *ledgerManager) Sync() error {
	event := &levelEvent{done: make(chan error, 1)}
	select {
	case lm.events <- event:
	case <-lm.quit:
		return ErrStopped
	}
	select {
	case err := <-event.done:
		return err
	case <-lm.finished:
		select {
		case err := <-event.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// ConfirmedTransactions returns the IDs of the transactions in ledger order
func (lm *ledgerManager) ConfirmedTransactions() []*externalapi.DomainTransactionID {
	lm.lock.RLock()
	defer lm.lock.RUnlock()

	var transactionIDs []*externalapi.DomainTransactionID
	for _, level := range lm.levels {
		transactionIDs = append(transactionIDs, transactionIDsOf(level.Applied)...)
	}
	return transactionIDs
}

func (lm *ledgerManager) Levels() []*model.LedgerLevel {
	lm.lock.RLock()
	defer lm.lock.RUnlock()

	levels := make([]*model.LedgerLevel, len(lm.levels))
	copy(levels, lm.levels)
	return levels
}
