package consensus

import (
	"time"

	"github.com/prism-dag/prismd/domain/dagconfig"
)

// Default values of the consensus configuration that don't come from the
// network parameters
const (
	DefaultOrphanBufferSize = 512
	DefaultOrphanExpiration = time.Hour
	DefaultUTXOCacheSize    = 10000
	DefaultLedgerQueueSize  = 1024
)

// Config is a descriptor which specifies the consensus instance configuration.
type Config struct {
	// Params identifies which network the consensus follows.
	dagconfig.Params

	// OrphanBufferSize is the maximum number of blocks kept while their
	// dependencies are missing. The oldest orphan is dropped when a new
	// one arrives at a full buffer.
	OrphanBufferSize int

	// OrphanExpiration is how long an orphan may wait for its
	// dependencies before it is dropped.
	OrphanExpiration time.Duration

	// UTXOCacheSize is the number of UTXO entries kept in memory.
	UTXOCacheSize int

	// LedgerQueueSize is the capacity of the ledger worker's queue.
	LedgerQueueSize int
}

// NewConfig returns a Config for params with every other field set to its
// default value
func NewConfig(params *dagconfig.Params) *Config {
	return &Config{
		Params:           *params,
		OrphanBufferSize: DefaultOrphanBufferSize,
		OrphanExpiration: DefaultOrphanExpiration,
		UTXOCacheSize:    DefaultUTXOCacheSize,
		LedgerQueueSize:  DefaultLedgerQueueSize,
	}
}
