package consensus

import (
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/datastructures/blockstore"
	"github.com/prism-dag/prismd/domain/consensus/datastructures/utxodatabase"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/processes/blockvalidator"
	"github.com/prism-dag/prismd/domain/consensus/processes/coinbasemanager"
	"github.com/prism-dag/prismd/domain/consensus/processes/ledgermanager"
	"github.com/prism-dag/prismd/domain/consensus/processes/proposertree"
	"github.com/prism-dag/prismd/domain/consensus/processes/voterchain"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
	"github.com/prism-dag/prismd/domain/consensus/utils/pow"
	"github.com/prism-dag/prismd/infrastructure/db/database"
)

// Factory instantiates new Consensuses
type Factory interface {
	NewConsensus(config *Config, db database.Database, requester model.BlockRequester) (Consensus, error)
}

type factory struct{}

// NewFactory creates a new Consensus factory
func NewFactory() Factory {
	return &factory{}
}

// NewConsensus instantiates a new Consensus holding the genesis blocks of
// config's network, and starts its ledger worker. The UTXO set is kept in
// db. requester may be nil, in which case missing dependencies of orphan
// blocks are not requested.
func (f *factory) NewConsensus(config *Config, db database.Database, requester model.BlockRequester) (Consensus, error) {
	err := config.Params.Validate()
	if err != nil {
		return nil, err
	}
	if config.OrphanBufferSize < 0 {
		return nil, errors.Errorf("the orphan buffer size must not be negative, got %d", config.OrphanBufferSize)
	}
	if config.OrphanExpiration <= 0 {
		return nil, errors.Errorf("the orphan expiration must be positive, got %s", config.OrphanExpiration)
	}
	sortition, err := pow.NewSortition(config.PowDifficulty, config.NumVoterChains)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid difficulty of %s", config.Name)
	}

	// Data Structures
	blockStore := blockstore.New()
	orphanPool := blockstore.NewOrphanPool(config.OrphanBufferSize, config.OrphanExpiration)
	utxoDatabase, err := utxodatabase.New(db, config.UTXOCacheSize)
	if err != nil {
		return nil, err
	}

	// Processes
	coinbaseManager := coinbasemanager.New(config.CoinbaseReward)
	blockValidator := blockvalidator.New(
		config.NumVoterChains,
		config.PowDifficulty,
		config.SkipProofOfWork,
		sortition,

		coinbaseManager,
		blockStore,
		orphanPool)

	genesis := config.GenesisProposerBlock()
	genesisHash := consensushashing.BlockHash(genesis)
	blockStore.Insert(genesisHash, genesis)
	proposerTree := proposertree.New(config.NumVoterChains, config.ConfirmationDepth, genesisHash)

	voterChains := make([]model.VoterChain, config.NumVoterChains)
	for i, voterGenesis := range config.GenesisVoterBlocks() {
		voterGenesisHash := consensushashing.BlockHash(voterGenesis)
		blockStore.Insert(voterGenesisHash, voterGenesis)
		voterChains[i] = voterchain.New(uint16(i), voterGenesisHash)
	}

	c := &consensus{
		requester: requester,

		blockStore:   blockStore,
		orphanPool:   orphanPool,
		utxoDatabase: utxoDatabase,

		blockValidator: blockValidator,
		voterChains:    voterChains,
		proposerTree:   proposerTree,

		genesisHash: genesisHash,
	}
	c.ledgerManager = ledgermanager.New(
		blockStore,
		proposerTree,
		utxoDatabase,
		genesisHash,
		config.LedgerQueueSize,
		c.onLedgerUpdate)
	c.ledgerManager.Start()

	log.Infof("Consensus of %s started with %d voter chains", config.Name, config.NumVoterChains)
	return c, nil
}
