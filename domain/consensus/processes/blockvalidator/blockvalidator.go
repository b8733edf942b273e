package blockvalidator

import (
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/utils/pow"
)

// blockValidator exposes a set of validation classes, after which
// it's possible to determine whether either a block is valid
type blockValidator struct {
	numVoterChains uint16
	powDifficulty  uint32
	skipPoW        bool
	sortition      *pow.Sortition

	coinbaseManager model.CoinbaseManager
	blockStore      model.BlockStore
	orphanPool      model.OrphanPool
}

// New instantiates a new BlockValidator
func New(numVoterChains uint16,
	powDifficulty uint32,
	skipPoW bool,
	sortition *pow.Sortition,

	coinbaseManager model.CoinbaseManager,
	blockStore model.BlockStore,
	orphanPool model.OrphanPool) model.BlockValidator {

	return &blockValidator{
		numVoterChains: numVoterChains,
		powDifficulty:  powDifficulty,
		skipPoW:        skipPoW,
		sortition:      sortition,

		coinbaseManager: coinbaseManager,
		blockStore:      blockStore,
		orphanPool:      orphanPool,
	}
}
