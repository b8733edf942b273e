package testutils

import (
	"testing"

	"github.com/prism-dag/prismd/domain/consensus"
	"github.com/prism-dag/prismd/domain/dagconfig"
)

// ForAllNets runs the passed testFunc with all available networks
// if skipPow = true - proof of work is not checked, which keeps mining
// blocks for the networks with a real target cheap
func ForAllNets(t *testing.T, skipPow bool, testFunc func(*testing.T, *consensus.Config)) {
	allParams := []dagconfig.Params{
		dagconfig.MainnetParams,
		dagconfig.DevnetParams,
		dagconfig.SimnetParams,
	}

	for _, params := range allParams {
		consensusConfig := consensus.NewConfig(&params)
		t.Run(consensusConfig.Name, func(t *testing.T) {
			t.Parallel()
			consensusConfig.SkipProofOfWork = skipPow
			t.Logf("Running test for %s", consensusConfig.Name)
			testFunc(t, consensusConfig)
		})
	}
}
