package dagconfig

import (
	"github.com/pkg/errors"
)

// The default sortition targets. Mainnet keeps one hash in 65536 under the
// target; the test networks accept almost every hash and only the role slice
// matters.
const (
	mainnetPowDifficulty uint32 = 0x1f00ffff
	devnetPowDifficulty  uint32 = 0x2000ffff
	simnetPowDifficulty  uint32 = 0x2100ffff
)

// SompiPerPrism is the number of base units in one coin.
const SompiPerPrism = 100_000_000

// Params defines a Prism network by its parameters. These parameters may be
// used by applications to differentiate networks as well as addresses
// and keys for one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// AddressPrefix is the bech32 human readable part of the network's
	// addresses.
	AddressPrefix string

	// NumVoterChains is the number of independent voter chains.
	NumVoterChains uint16

	// ConfirmationDepth is how many voter blocks have to be built on a vote,
	// the vote's own block included, before the vote counts as stable for
	// finalizing a proposer level.
	ConfirmationDepth uint64

	// PowDifficulty is the compact representation of the sortition target
	// every block hash must fall under.
	PowDifficulty uint32

	// CoinbaseReward is the maximum value the coinbase transaction of a
	// transaction block may create.
	CoinbaseReward uint64

	// SkipProofOfWork indicates whether proof of work should be checked.
	SkipProofOfWork bool
}

// MainnetParams defines the network parameters for the main Prism network.
var MainnetParams = Params{
	Name:              "prism-mainnet",
	AddressPrefix:     "prism",
	NumVoterChains:    1000,
	ConfirmationDepth: 6,
	PowDifficulty:     mainnetPowDifficulty,
	CoinbaseReward:    50 * SompiPerPrism,
	SkipProofOfWork:   false,
}

// DevnetParams defines the network parameters for the development Prism network.
var DevnetParams = Params{
	Name:              "prism-devnet",
	AddressPrefix:     "prismdev",
	NumVoterChains:    100,
	ConfirmationDepth: 3,
	PowDifficulty:     devnetPowDifficulty,
	CoinbaseReward:    50 * SompiPerPrism,
	SkipProofOfWork:   false,
}

// SimnetParams defines the network parameters for the simulation test Prism
// network. This network is similar to the normal test network except it is
// intended for private use within a group of individuals doing simulation
// testing.
var SimnetParams = Params{
	Name:              "prism-simnet",
	AddressPrefix:     "prismsim",
	NumVoterChains:    3,
	ConfirmationDepth: 1,
	PowDifficulty:     simnetPowDifficulty,
	CoinbaseReward:    50 * SompiPerPrism,
	SkipProofOfWork:   false,
}

// Validate checks the params for values the consensus can't run with.
func (p *Params) Validate() error {
	if p.NumVoterChains == 0 {
		return errors.Errorf("%s: at least one voter chain is required", p.Name)
	}
	if p.ConfirmationDepth == 0 {
		return errors.Errorf("%s: confirmation depth must be positive", p.Name)
	}
	if p.AddressPrefix == "" {
		return errors.Errorf("%s: address prefix is empty", p.Name)
	}
	return nil
}
