package testutils

import (
	"sync"
	"testing"

	"github.com/prism-dag/prismd/domain/consensus"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/infrastructure/db/database/ldb"
)

// BlockRequesterMock records the hashes the consensus requested
type BlockRequesterMock struct {
	lock      sync.Mutex
	requested []*externalapi.DomainHash
}

// RequestMissing implements model.BlockRequester
func (m *BlockRequesterMock) RequestMissing(hash *externalapi.DomainHash) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.requested = append(m.requested, hash)
}

// Requested returns every requested hash in request order
func (m *BlockRequesterMock) Requested() []*externalapi.DomainHash {
	m.lock.Lock()
	defer m.lock.Unlock()
	return externalapi.CloneHashes(m.requested)
}

// NewTestConsensus creates a consensus over an in-memory database. The
// returned teardown function closes both.
func NewTestConsensus(t testing.TB, config *consensus.Config) (
	tc consensus.Consensus, requester *BlockRequesterMock, teardown func()) {

	db, err := ldb.NewMemLevelDB()
	if err != nil {
		t.Fatalf("NewMemLevelDB: %+v", err)
	}
	requester = &BlockRequesterMock{}
	tc, err = consensus.NewFactory().NewConsensus(config, db, requester)
	if err != nil {
		t.Fatalf("NewConsensus: %+v", err)
	}
	return tc, requester, func() {
		tc.Close()
		err := db.Close()
		if err != nil {
			t.Fatalf("Close: %+v", err)
		}
	}
}
