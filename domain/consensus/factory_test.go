package consensus_test

import (
	"testing"
	"time"

	"github.com/prism-dag/prismd/domain/consensus"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/utils/testutils"
	"github.com/prism-dag/prismd/domain/dagconfig"
	"github.com/prism-dag/prismd/infrastructure/db/database/ldb"
)

func TestNewConsensus(t *testing.T) {
	testutils.ForAllNets(t, true, func(t *testing.T, config *consensus.Config) {
		tc, _, teardown := testutils.NewTestConsensus(t, config)
		defer teardown()

		if tc.BlockCount() != 1+int(config.NumVoterChains) {
			t.Fatalf("expected the genesis proposer and %d voter genesis blocks, got %d blocks",
				config.NumVoterChains, tc.BlockCount())
		}
		leader, ok := tc.Leader(0)
		if !ok || !leader.Equal(tc.GenesisHash()) {
			t.Fatalf("genesis must lead level 0")
		}
		if tc.LevelStatus(1) != model.LevelStatusEmpty {
			t.Fatalf("level 1 must be empty, got %s", tc.LevelStatus(1))
		}
		for chainID := uint16(0); chainID < config.NumVoterChains; chainID++ {
			bestNode, err := tc.VoterChainBestNode(chainID)
			if err != nil {
				t.Fatalf("VoterChainBestNode: %+v", err)
			}
			if bestNode.Level != 0 {
				t.Fatalf("voter chain %d starts at level %d", chainID, bestNode.Level)
			}
		}
		if _, err := tc.VoterChainBestNode(config.NumVoterChains); err == nil {
			t.Fatalf("expected an error for a voter chain that doesn't exist")
		}

		err := tc.SyncLedger()
		if err != nil {
			t.Fatalf("SyncLedger: %+v", err)
		}
		if len(tc.ConfirmedTransactions()) != 0 {
			t.Fatalf("a new ledger must be empty")
		}
	})
}

func TestNewConsensusInvalidParams(t *testing.T) {
	db, err := ldb.NewMemLevelDB()
	if err != nil {
		t.Fatalf("NewMemLevelDB: %+v", err)
	}
	defer db.Close()

	config := consensus.NewConfig(&dagconfig.SimnetParams)
	config.NumVoterChains = 0
	_, err = consensus.NewFactory().NewConsensus(config, db, nil)
	if err == nil {
		t.Fatalf("expected an error for a network without voter chains")
	}

	config = consensus.NewConfig(&dagconfig.SimnetParams)
	config.PowDifficulty = 0x04923456
	_, err = consensus.NewFactory().NewConsensus(config, db, nil)
	if err == nil {
		t.Fatalf("expected an error for a negative difficulty target")
	}

	tests := []struct {
		name   string
		modify func(config *consensus.Config)
	}{
		{"negative orphan buffer size", func(config *consensus.Config) { config.OrphanBufferSize = -1 }},
		{"zero orphan expiration", func(config *consensus.Config) { config.OrphanExpiration = 0 }},
		{"negative orphan expiration", func(config *consensus.Config) { config.OrphanExpiration = -time.Minute }},
	}
	for _, test := range tests {
		config := consensus.NewConfig(&dagconfig.SimnetParams)
		test.modify(config)
		_, err := consensus.NewFactory().NewConsensus(config, db, nil)
		if err == nil {
			t.Fatalf("%s: expected an error", test.name)
		}
	}

	// An empty orphan buffer is allowed
	config = consensus.NewConfig(&dagconfig.SimnetParams)
	config.OrphanBufferSize = 0
	tc, err := consensus.NewFactory().NewConsensus(config, db, nil)
	if err != nil {
		t.Fatalf("NewConsensus: %+v", err)
	}
	tc.Close()
}
