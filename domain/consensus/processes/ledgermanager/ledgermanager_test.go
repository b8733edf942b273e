package ledgermanager

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/kaspanet/go-secp256k1"
	"github.com/prism-dag/prismd/domain/consensus/datastructures/blockstore"
	"github.com/prism-dag/prismd/domain/consensus/datastructures/utxodatabase"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
	"github.com/prism-dag/prismd/domain/consensus/utils/transactionhelper"
	"github.com/prism-dag/prismd/domain/consensus/utils/txauth"
	"github.com/prism-dag/prismd/infrastructure/db/database/ldb"
	"go.uber.org/goleak"
)

const reward = 50

var genesis = hashOf(0xf0)

func hashOf(b byte) *externalapi.DomainHash {
	return externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{b})
}

// fakeProposerTree only answers DecidedPrefix
type fakeProposerTree struct {
	model.ProposerTree

	lock    sync.Mutex
	leaders []*externalapi.DomainHash
}

func (f *fakeProposerTree) DecidedPrefix() ([]*externalapi.DomainHash, uint64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return externalapi.CloneHashes(f.leaders), uint64(len(f.leaders))
}

func (f *fakeProposerTree) decide(leaders ...*externalapi.DomainHash) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.leaders = append([]*externalapi.DomainHash{genesis}, leaders...)
}

type testContext struct {
	t             *testing.T
	blockStore    model.BlockStore
	proposerTree  *fakeProposerTree
	utxoDatabase  model.UTXODatabase
	ledgerManager model.LedgerManager

	updatesLock  sync.Mutex
	updates      []*model.LedgerUpdate
	onUpdateHook func(update *model.LedgerUpdate)
}

func setup(t *testing.T) (tc *testContext, teardown func()) {
	return setupWith(t, nil, nil)
}

// setupWith lets a test wrap the UTXO database and hook into every ledger
// update. Either may be nil.
func setupWith(t *testing.T, wrapUTXODatabase func(model.UTXODatabase) model.UTXODatabase,
	onUpdateHook func(update *model.LedgerUpdate)) (tc *testContext, teardown func()) {

	db, err := ldb.NewMemLevelDB()
	if err != nil {
		t.Fatalf("NewMemLevelDB: %+v", err)
	}
	utxoDatabase, err := utxodatabase.New(db, 100)
	if err != nil {
		t.Fatalf("utxodatabase.New: %+v", err)
	}
	if wrapUTXODatabase != nil {
		utxoDatabase = wrapUTXODatabase(utxoDatabase)
	}

	tc = &testContext{
		t:            t,
		blockStore:   blockstore.New(),
		proposerTree: &fakeProposerTree{leaders: []*externalapi.DomainHash{genesis}},
		utxoDatabase: utxoDatabase,
		onUpdateHook: onUpdateHook,
	}
	tc.blockStore.Insert(genesis, &externalapi.DomainBlock{
		Header: &externalapi.BlockHeader{ParentHash: externalapi.ZeroHash, ContentHash: externalapi.ZeroHash},
		Content: &externalapi.ProposerContent{
			TransactionRefs: []*externalapi.DomainHash{},
			ProposerRefs:    []*externalapi.DomainHash{},
		},
	})
	tc.ledgerManager = New(tc.blockStore, tc.proposerTree, utxoDatabase, genesis, 10, tc.onUpdate)
	tc.ledgerManager.Start()

	return tc, func() {
		tc.ledgerManager.Stop()
		err := db.Close()
		if err != nil {
			t.Fatalf("Close: %+v", err)
		}
	}
}

func (tc *testContext) onUpdate(update *model.LedgerUpdate) {
	tc.updatesLock.Lock()
	tc.updates = append(tc.updates, update)
	tc.updatesLock.Unlock()

	if tc.onUpdateHook != nil {
		tc.onUpdateHook(update)
	}
}

func (tc *testContext) lastUpdate() *model.LedgerUpdate {
	tc.updatesLock.Lock()
	defer tc.updatesLock.Unlock()
	if len(tc.updates) == 0 {
		tc.t.Fatalf("no ledger update was emitted")
	}
	return tc.updates[len(tc.updates)-1]
}

func (tc *testContext) addTransactionBlock(hash *externalapi.DomainHash,
	transactions ...*externalapi.DomainTransaction) {

	tc.blockStore.Insert(hash, &externalapi.DomainBlock{
		Header:  &externalapi.BlockHeader{ParentHash: genesis, ContentHash: externalapi.ZeroHash},
		Content: &externalapi.TransactionContent{Transactions: transactions},
	})
}

func (tc *testContext) addProposer(hash *externalapi.DomainHash,
	transactionRefs []*externalapi.DomainHash, proposerRefs []*externalapi.DomainHash) {

	tc.blockStore.Insert(hash, &externalapi.DomainBlock{
		Header: &externalapi.BlockHeader{ParentHash: genesis, ContentHash: externalapi.ZeroHash},
		Content: &externalapi.ProposerContent{
			TransactionRefs: transactionRefs,
			ProposerRefs:    proposerRefs,
		},
	})
}

func (tc *testContext) decide(leaders ...*externalapi.DomainHash) {
	tc.proposerTree.decide(leaders...)
	tc.ledgerManager.NotifyLevelsChanged()
	err := tc.ledgerManager.Sync()
	if err != nil {
		tc.t.Fatalf("Sync: %+v", err)
	}
}

func (tc *testContext) expectConfirmed(expected ...*externalapi.DomainTransaction) {
	tc.t.Helper()
	confirmed := tc.ledgerManager.ConfirmedTransactions()
	expectedIDs := consensushashing.TransactionIDs(expected)
	if len(confirmed) != len(expectedIDs) {
		tc.t.Fatalf("expected %d confirmed transactions, got %d", len(expectedIDs), len(confirmed))
	}
	for i, transactionID := range confirmed {
		if !transactionID.Equal(expectedIDs[i]) {
			tc.t.Fatalf("confirmed transaction %d is %s instead of %s", i, transactionID, expectedIDs[i])
		}
	}
}

func (tc *testContext) expectBalance(address externalapi.Address, expected uint64) {
	tc.t.Helper()
	balance, err := tc.utxoDatabase.Balance(address)
	if err != nil {
		tc.t.Fatalf("Balance: %+v", err)
	}
	if balance != expected {
		tc.t.Fatalf("expected a balance of %d for %s, got %d", expected, address, balance)
	}
}

func coinbase(address externalapi.Address, id byte) *externalapi.DomainTransaction {
	return transactionhelper.NewCoinbaseTransaction(address, reward, []byte{id})
}

func TestLinearizationOrder(t *testing.T) {
	tc, teardown := setup(t)
	defer teardown()

	cb1, cb2, cb3 := coinbase(externalapi.Address{1}, 1), coinbase(externalapi.Address{2}, 2), coinbase(externalapi.Address{3}, 3)
	t1, t2, t3 := hashOf(0x11), hashOf(0x12), hashOf(0x13)
	tc.addTransactionBlock(t1, cb1)
	tc.addTransactionBlock(t2, cb2)
	tc.addTransactionBlock(t3, cb3)

	p1a, p1b, p2 := hashOf(0x21), hashOf(0x22), hashOf(0x31)
	tc.addProposer(p1a, []*externalapi.DomainHash{t1}, nil)
	tc.addProposer(p1b, []*externalapi.DomainHash{t2, t1}, nil)
	tc.addProposer(p2, []*externalapi.DomainHash{t3, t2}, []*externalapi.DomainHash{p1b})

	tc.decide(p1a)
	tc.expectConfirmed(cb1)
	update := tc.lastUpdate()
	if update.LedgerLevel != 1 || len(update.AddedTransactions) != 1 || len(update.UTXODiff.ToAdd) != 1 {
		t.Fatalf("unexpected update: %s", spew.Sdump(update))
	}

	tc.decide(p1a, p2)
	tc.expectConfirmed(cb1, cb2, cb3)
	levels := tc.ledgerManager.Levels()
	if len(levels) != 3 ||
		!externalapi.HashesEqual(levels[2].Proposers, []*externalapi.DomainHash{p1b, p2}) ||
		!externalapi.HashesEqual(levels[2].TransactionBlocks, []*externalapi.DomainHash{t2, t3}) {
		t.Fatalf("unexpected ledger levels: %s", spew.Sdump(levels))
	}
	tc.expectBalance(externalapi.Address{3}, reward)

	// Nothing changed, so no update is emitted
	updateCount := len(tc.updates)
	tc.decide(p1a, p2)
	if len(tc.updates) != updateCount {
		t.Fatalf("an unchanged prefix must not emit an update")
	}
}

func TestDoubleSpendIsSkipped(t *testing.T) {
	tc, teardown := setup(t)
	defer teardown()

	key, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		t.Fatalf("GenerateSchnorrKeyPair: %+v", err)
	}
	owner, err := txauth.AddressOfKey(key)
	if err != nil {
		t.Fatalf("AddressOfKey: %+v", err)
	}
	funding := coinbase(owner, 1)
	fundingOutpoint := externalapi.NewDomainOutpoint(consensushashing.TransactionID(funding), 0)
	first, err := transactionhelper.NewSignedTransaction(key, []*externalapi.DomainOutpoint{fundingOutpoint},
		[]*externalapi.DomainTransactionOutput{{Value: reward, Address: externalapi.Address{0xa}}})
	if err != nil {
		t.Fatalf("NewSignedTransaction: %+v", err)
	}
	second, err := transactionhelper.NewSignedTransaction(key, []*externalapi.DomainOutpoint{fundingOutpoint},
		[]*externalapi.DomainTransactionOutput{{Value: reward, Address: externalapi.Address{0xb}}})
	if err != nil {
		t.Fatalf("NewSignedTransaction: %+v", err)
	}

	cbA, cbB := coinbase(externalapi.Address{2}, 2), coinbase(externalapi.Address{3}, 3)
	tc.addTransactionBlock(hashOf(0x11), funding)
	tc.addTransactionBlock(hashOf(0x12), cbA, first)
	tc.addTransactionBlock(hashOf(0x13), cbB, second)

	// The two spends are reachable from different proposer blocks
	tc.addProposer(hashOf(0x21), []*externalapi.DomainHash{hashOf(0x11)}, nil)
	tc.addProposer(hashOf(0x22), []*externalapi.DomainHash{hashOf(0x13)}, nil)
	tc.addProposer(hashOf(0x31), []*externalapi.DomainHash{hashOf(0x12)}, []*externalapi.DomainHash{hashOf(0x22)})

	tc.decide(hashOf(0x21), hashOf(0x31))
	tc.expectConfirmed(funding, cbB, second, cbA)
	tc.expectBalance(externalapi.Address{0xb}, reward)
	tc.expectBalance(externalapi.Address{0xa}, 0)
	tc.expectBalance(owner, 0)

	levels := tc.ledgerManager.Levels()
	if len(levels[2].Skipped) != 1 || !consensushashing.TransactionID(levels[2].Skipped[0].Transaction).
		Equal(consensushashing.TransactionID(first)) {
		t.Fatalf("expected the later spend to be skipped, got %s", spew.Sdump(levels[2].Skipped))
	}
}

func TestLeaderChangeRevertsLevel(t *testing.T) {
	tc, teardown := setup(t)
	defer teardown()

	cb1, cb2 := coinbase(externalapi.Address{1}, 1), coinbase(externalapi.Address{2}, 2)
	tc.addTransactionBlock(hashOf(0x11), cb1)
	tc.addTransactionBlock(hashOf(0x12), cb2)
	tc.addProposer(hashOf(0x21), []*externalapi.DomainHash{hashOf(0x11)}, nil)
	tc.addProposer(hashOf(0x22), []*externalapi.DomainHash{hashOf(0x12)}, nil)

	tc.decide(hashOf(0x21))
	commitmentBefore, err := tc.utxoDatabase.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %+v", err)
	}
	tc.expectBalance(externalapi.Address{1}, reward)

	tc.decide(hashOf(0x22))
	tc.expectConfirmed(cb2)
	tc.expectBalance(externalapi.Address{1}, 0)
	tc.expectBalance(externalapi.Address{2}, reward)
	update := tc.lastUpdate()
	if len(update.RemovedTransactions) != 1 || len(update.AddedTransactions) != 1 ||
		!update.RemovedTransactions[0].Equal(consensushashing.TransactionID(cb1)) {
		t.Fatalf("unexpected update: %s", spew.Sdump(update))
	}

	tc.decide(hashOf(0x21))
	commitmentAfter, err := tc.utxoDatabase.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %+v", err)
	}
	if !commitmentAfter.Equal(commitmentBefore) {
		t.Fatalf("switching back must restore the UTXO commitment")
	}
}

// failingUTXODatabase fails Apply with a storage error once failAfter
// transactions of the batch went through
type failingUTXODatabase struct {
	model.UTXODatabase

	lock      sync.Mutex
	failAfter int
	failing   bool
}

var errStorage = errors.New("storage failure")

func (f *failingUTXODatabase) Apply(transactions []*externalapi.DomainTransaction) (*model.ApplyResult, error) {
	f.lock.Lock()
	failing, failAfter := f.failing, f.failAfter
	f.lock.Unlock()

	if !failing || len(transactions) <= failAfter {
		return f.UTXODatabase.Apply(transactions)
	}
	result, err := f.UTXODatabase.Apply(transactions[:failAfter])
	if err != nil {
		return result, err
	}
	return result, errStorage
}

func (f *failingUTXODatabase) setFailing(failing bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.failing = failing
}

func TestFailedApplyLeavesLedgerUntouched(t *testing.T) {
	failing := &failingUTXODatabase{failAfter: 1, failing: true}
	tc, teardown := setupWith(t, func(utxoDatabase model.UTXODatabase) model.UTXODatabase {
		failing.UTXODatabase = utxoDatabase
		return failing
	}, nil)
	defer teardown()

	// Level 1 applies a single transaction, level 2 fails after its first
	cb1 := coinbase(externalapi.Address{1}, 1)
	cb2, cb3 := coinbase(externalapi.Address{2}, 2), coinbase(externalapi.Address{3}, 3)
	tc.addTransactionBlock(hashOf(0x11), cb1)
	tc.addTransactionBlock(hashOf(0x12), cb2, cb3)
	tc.addProposer(hashOf(0x21), []*externalapi.DomainHash{hashOf(0x11)}, nil)
	tc.addProposer(hashOf(0x31), []*externalapi.DomainHash{hashOf(0x12)}, nil)

	tc.decide(hashOf(0x21))
	commitmentBefore, err := tc.utxoDatabase.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %+v", err)
	}
	updateCount := len(tc.updates)

	tc.proposerTree.decide(hashOf(0x21), hashOf(0x31))
	tc.ledgerManager.NotifyLevelsChanged()
	err = tc.ledgerManager.Sync()
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected the storage error, got %v", err)
	}

	commitmentAfter, err := tc.utxoDatabase.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %+v", err)
	}
	if !commitmentAfter.Equal(commitmentBefore) {
		t.Fatalf("a failed level must not leave transactions in the UTXO set")
	}
	tc.expectBalance(externalapi.Address{2}, 0)
	tc.expectConfirmed(cb1)
	if len(tc.ledgerManager.Levels()) != 2 {
		t.Fatalf("a failed level must not be appended, got %s", spew.Sdump(tc.ledgerManager.Levels()))
	}
	if len(tc.updates) != updateCount {
		t.Fatalf("a failed level must not emit an update")
	}

	// Once storage recovers the same level is applied in full
	failing.setFailing(false)
	tc.decide(hashOf(0x21), hashOf(0x31))
	tc.expectConfirmed(cb1, cb2, cb3)
	tc.expectBalance(externalapi.Address{2}, reward)
	tc.expectBalance(externalapi.Address{3}, reward)
	update := tc.lastUpdate()
	if update.LedgerLevel != 2 || len(update.AddedTransactions) != 2 {
		t.Fatalf("unexpected update: %s", spew.Sdump(update))
	}
}

func TestPartialUpdateIsEmitted(t *testing.T) {
	failing := &failingUTXODatabase{failAfter: 1, failing: true}
	tc, teardown := setupWith(t, func(utxoDatabase model.UTXODatabase) model.UTXODatabase {
		failing.UTXODatabase = utxoDatabase
		return failing
	}, nil)
	defer teardown()

	cb1 := coinbase(externalapi.Address{1}, 1)
	cb2, cb3 := coinbase(externalapi.Address{2}, 2), coinbase(externalapi.Address{3}, 3)
	tc.addTransactionBlock(hashOf(0x11), cb1)
	tc.addTransactionBlock(hashOf(0x12), cb2, cb3)
	tc.addProposer(hashOf(0x21), []*externalapi.DomainHash{hashOf(0x11)}, nil)
	tc.addProposer(hashOf(0x31), []*externalapi.DomainHash{hashOf(0x12)}, nil)

	// Both levels in one update: level 1 goes through before level 2 fails
	tc.proposerTree.decide(hashOf(0x21), hashOf(0x31))
	tc.ledgerManager.NotifyLevelsChanged()
	err := tc.ledgerManager.Sync()
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected the storage error, got %v", err)
	}
	tc.expectConfirmed(cb1)
	update := tc.lastUpdate()
	if update.LedgerLevel != 1 || len(update.AddedTransactions) != 1 ||
		!update.AddedTransactions[0].Equal(consensushashing.TransactionID(cb1)) {
		t.Fatalf("expected an update for level 1 alone, got %s", spew.Sdump(update))
	}
}

func TestUpdateSubscriberCanReadLedger(t *testing.T) {
	type observation struct {
		confirmed int
		levels    int
	}
	observations := make(chan observation, 10)
	var tc *testContext
	tc, teardown := setupWith(t, nil, func(update *model.LedgerUpdate) {
		observations <- observation{
			confirmed: len(tc.ledgerManager.ConfirmedTransactions()),
			levels:    len(tc.ledgerManager.Levels()),
		}
	})

	cb1 := coinbase(externalapi.Address{1}, 1)
	tc.addTransactionBlock(hashOf(0x11), cb1)
	tc.addProposer(hashOf(0x21), []*externalapi.DomainHash{hashOf(0x11)}, nil)

	synced := make(chan error, 1)
	go func() {
		tc.proposerTree.decide(hashOf(0x21))
		tc.ledgerManager.NotifyLevelsChanged()
		synced <- tc.ledgerManager.Sync()
	}()

	select {
	case err := <-synced:
		if err != nil {
			t.Fatalf("Sync: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("the ledger worker is stuck while a subscriber reads the ledger")
	}

	select {
	case seen := <-observations:
		if seen.confirmed != 1 || seen.levels != 2 {
			t.Fatalf("the subscriber saw %d confirmed transactions over %d levels, "+
				"expected 1 over 2", seen.confirmed, seen.levels)
		}
	default:
		t.Fatalf("no ledger update was emitted")
	}
	teardown()
}

func TestStop(t *testing.T) {
	db, err := ldb.NewMemLevelDB()
	if err != nil {
		t.Fatalf("NewMemLevelDB: %+v", err)
	}
	defer db.Close()
	utxoDatabase, err := utxodatabase.New(db, 100)
	if err != nil {
		t.Fatalf("utxodatabase.New: %+v", err)
	}

	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	proposerTree := &fakeProposerTree{leaders: []*externalapi.DomainHash{genesis}}
	ledgerManager := New(blockstore.New(), proposerTree, utxoDatabase, genesis, 1, nil)
	ledgerManager.Start()
	for i := 0; i < 10; i++ {
		ledgerManager.NotifyLevelsChanged()
	}
	err = ledgerManager.Sync()
	if err != nil {
		t.Fatalf("Sync: %+v", err)
	}
	ledgerManager.Stop()
	ledgerManager.Stop()

	err = ledgerManager.Sync()
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	ledgerManager.NotifyLevelsChanged()

	neverStarted := New(blockstore.New(), proposerTree, utxoDatabase, genesis, 1, nil)
	neverStarted.Stop()
}
