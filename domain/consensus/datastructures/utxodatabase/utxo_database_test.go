package utxodatabase

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kaspanet/go-secp256k1"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
	"github.com/prism-dag/prismd/domain/consensus/utils/transactionhelper"
	"github.com/prism-dag/prismd/domain/consensus/utils/txauth"
	"github.com/prism-dag/prismd/infrastructure/db/database"
	"github.com/prism-dag/prismd/infrastructure/db/database/badgerdb"
	"github.com/prism-dag/prismd/infrastructure/db/database/ldb"
	"pgregory.net/rapid"
)

type testKey struct {
	key     *secp256k1.SchnorrKeyPair
	address externalapi.Address
}

func newTestKey(t testing.TB) *testKey {
	key, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		t.Fatalf("GenerateSchnorrKeyPair: %+v", err)
	}
	address, err := txauth.AddressOfKey(key)
	if err != nil {
		t.Fatalf("AddressOfKey: %+v", err)
	}
	return &testKey{key: key, address: address}
}

func forAllDatabases(t *testing.T, testFunc func(t *testing.T, db database.Database)) {
	t.Run("ldb", func(t *testing.T) {
		db, err := ldb.NewMemLevelDB()
		if err != nil {
			t.Fatalf("NewMemLevelDB: %+v", err)
		}
		defer db.Close()
		testFunc(t, db)
	})
	t.Run("badger", func(t *testing.T) {
		db, err := badgerdb.NewMemBadgerDB()
		if err != nil {
			t.Fatalf("NewMemBadgerDB: %+v", err)
		}
		defer db.Close()
		testFunc(t, db)
	})
}

func newTestUTXODatabase(t *testing.T, db database.Database) model.UTXODatabase {
	utxoDatabase, err := New(db, 100)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	return utxoDatabase
}

func outpointOf(transaction *externalapi.DomainTransaction, index uint32) *externalapi.DomainOutpoint {
	return externalapi.NewDomainOutpoint(consensushashing.TransactionID(transaction), index)
}

func signedTransaction(t *testing.T, key *testKey, outpoints []*externalapi.DomainOutpoint,
	outputs ...*externalapi.DomainTransactionOutput) *externalapi.DomainTransaction {

	transaction, err := transactionhelper.NewSignedTransaction(key.key, outpoints, outputs)
	if err != nil {
		t.Fatalf("NewSignedTransaction: %+v", err)
	}
	return transaction
}

func expectBalance(t *testing.T, utxoDatabase model.UTXODatabase, address externalapi.Address, expected uint64) {
	t.Helper()
	balance, err := utxoDatabase.Balance(address)
	if err != nil {
		t.Fatalf("Balance: %+v", err)
	}
	if balance != expected {
		t.Fatalf("expected balance %d for %s, got %d", expected, address, balance)
	}
}

func TestApplyTransaction(t *testing.T) {
	alice := newTestKey(t)
	bob := newTestKey(t)

	forAllDatabases(t, func(t *testing.T, db database.Database) {
		utxoDatabase := newTestUTXODatabase(t, db)

		coinbase := transactionhelper.NewCoinbaseTransaction(alice.address, 100, []byte{1})
		diff, err := utxoDatabase.ApplyTransaction(coinbase)
		if err != nil {
			t.Fatalf("ApplyTransaction: %+v", err)
		}
		if len(diff.ToAdd) != 1 || len(diff.ToRemove) != 0 {
			t.Fatalf("unexpected coinbase diff: %d added, %d removed", len(diff.ToAdd), len(diff.ToRemove))
		}
		expectBalance(t, utxoDatabase, alice.address, 100)

		_, err = utxoDatabase.ApplyTransaction(coinbase)
		if !errors.Is(err, ruleerrors.ErrDuplicateOutput) {
			t.Fatalf("expected ErrDuplicateOutput, got %v", err)
		}

		coinbaseOutpoint := outpointOf(coinbase, 0)
		spend := signedTransaction(t, alice, []*externalapi.DomainOutpoint{coinbaseOutpoint},
			&externalapi.DomainTransactionOutput{Value: 60, Address: bob.address},
			&externalapi.DomainTransactionOutput{Value: 40, Address: alice.address})

		stolen := signedTransaction(t, bob, []*externalapi.DomainOutpoint{coinbaseOutpoint},
			&externalapi.DomainTransactionOutput{Value: 100, Address: bob.address})
		_, err = utxoDatabase.ApplyTransaction(stolen)
		if !errors.Is(err, ruleerrors.ErrInvalidAuthorization) {
			t.Fatalf("expected ErrInvalidAuthorization, got %v", err)
		}

		tooHigh := signedTransaction(t, alice, []*externalapi.DomainOutpoint{coinbaseOutpoint},
			&externalapi.DomainTransactionOutput{Value: 101, Address: bob.address})
		_, err = utxoDatabase.ApplyTransaction(tooHigh)
		if !errors.Is(err, ruleerrors.ErrSpendTooHigh) {
			t.Fatalf("expected ErrSpendTooHigh, got %v", err)
		}

		duplicateInputs := signedTransaction(t, alice,
			[]*externalapi.DomainOutpoint{coinbaseOutpoint, coinbaseOutpoint},
			&externalapi.DomainTransactionOutput{Value: 1, Address: bob.address})
		_, err = utxoDatabase.ApplyTransaction(duplicateInputs)
		if !errors.Is(err, ruleerrors.ErrDuplicateTxInputs) {
			t.Fatalf("expected ErrDuplicateTxInputs, got %v", err)
		}
		expectBalance(t, utxoDatabase, alice.address, 100)

		_, err = utxoDatabase.ApplyTransaction(spend)
		if err != nil {
			t.Fatalf("ApplyTransaction: %+v", err)
		}
		expectBalance(t, utxoDatabase, alice.address, 40)
		expectBalance(t, utxoDatabase, bob.address, 60)

		isUnspent, err := utxoDatabase.IsUnspent(coinbaseOutpoint)
		if err != nil {
			t.Fatalf("IsUnspent: %+v", err)
		}
		if isUnspent {
			t.Fatalf("the spent coinbase output is still unspent")
		}

		doubleSpend := signedTransaction(t, alice, []*externalapi.DomainOutpoint{coinbaseOutpoint},
			&externalapi.DomainTransactionOutput{Value: 100, Address: alice.address})
		_, err = utxoDatabase.ApplyTransaction(doubleSpend)
		var missingTxOut ruleerrors.ErrMissingTxOut
		if !errors.As(err, &missingTxOut) || len(missingTxOut.MissingOutpoints) != 1 ||
			*missingTxOut.MissingOutpoints[0] != *coinbaseOutpoint {
			t.Fatalf("expected ErrMissingTxOut for %s, got %v", coinbaseOutpoint, err)
		}

		bobsUTXOs, err := utxoDatabase.UTXOsByAddress(bob.address)
		if err != nil {
			t.Fatalf("UTXOsByAddress: %+v", err)
		}
		if len(bobsUTXOs) != 1 || *bobsUTXOs[0].Outpoint != *outpointOf(spend, 0) ||
			bobsUTXOs[0].UTXOEntry.Amount != 60 || bobsUTXOs[0].UTXOEntry.IsCoinbase {
			t.Fatalf("unexpected UTXOs of bob: %v", bobsUTXOs)
		}
	})
}

func TestApplyAndRevert(t *testing.T) {
	alice := newTestKey(t)
	bob := newTestKey(t)

	forAllDatabases(t, func(t *testing.T, db database.Database) {
		utxoDatabase := newTestUTXODatabase(t, db)

		initial := transactionhelper.NewCoinbaseTransaction(alice.address, 10, []byte{0})
		_, err := utxoDatabase.ApplyTransaction(initial)
		if err != nil {
			t.Fatalf("ApplyTransaction: %+v", err)
		}
		commitmentBefore, err := utxoDatabase.Commitment()
		if err != nil {
			t.Fatalf("Commitment: %+v", err)
		}
		serializedBefore, err := db.Get(commitmentKey)
		if err != nil {
			t.Fatalf("Get: %+v", err)
		}

		coinbase := transactionhelper.NewCoinbaseTransaction(alice.address, 50, []byte{1})
		spend := signedTransaction(t, alice, []*externalapi.DomainOutpoint{outpointOf(coinbase, 0)},
			&externalapi.DomainTransactionOutput{Value: 50, Address: bob.address})
		conflict := signedTransaction(t, alice, []*externalapi.DomainOutpoint{outpointOf(coinbase, 0)},
			&externalapi.DomainTransactionOutput{Value: 50, Address: alice.address})
		spendInitial := signedTransaction(t, alice, []*externalapi.DomainOutpoint{outpointOf(initial, 0)},
			&externalapi.DomainTransactionOutput{Value: 10, Address: bob.address})

		transactions := []*externalapi.DomainTransaction{coinbase, spend, conflict, spendInitial}
		result, err := utxoDatabase.Apply(transactions)
		if err != nil {
			t.Fatalf("Apply: %+v", err)
		}
		if len(result.Applied) != 3 || len(result.Skipped) != 1 || result.Skipped[0].Transaction != conflict {
			t.Fatalf("expected only the conflicting spend to be skipped, got %d applied and %d skipped",
				len(result.Applied), len(result.Skipped))
		}
		// The coinbase output is created and spent inside the batch
		if len(result.Diff.ToAdd) != 2 || len(result.Diff.ToRemove) != 1 {
			t.Fatalf("unexpected batch diff: %d added, %d removed", len(result.Diff.ToAdd), len(result.Diff.ToRemove))
		}
		expectBalance(t, utxoDatabase, bob.address, 60)
		expectBalance(t, utxoDatabase, alice.address, 0)

		revertDiff, err := utxoDatabase.Revert(transactions)
		if err != nil {
			t.Fatalf("Revert: %+v", err)
		}
		if len(revertDiff.ToAdd) != 1 || len(revertDiff.ToRemove) != 2 {
			t.Fatalf("unexpected revert diff: %d added, %d removed", len(revertDiff.ToAdd), len(revertDiff.ToRemove))
		}
		expectBalance(t, utxoDatabase, bob.address, 0)
		expectBalance(t, utxoDatabase, alice.address, 10)

		commitmentAfter, err := utxoDatabase.Commitment()
		if err != nil {
			t.Fatalf("Commitment: %+v", err)
		}
		if !commitmentAfter.Equal(commitmentBefore) {
			t.Fatalf("apply and revert changed the commitment from %s to %s", commitmentBefore, commitmentAfter)
		}
		serializedAfter, err := db.Get(commitmentKey)
		if err != nil {
			t.Fatalf("Get: %+v", err)
		}
		if !bytes.Equal(serializedBefore, serializedAfter) {
			t.Fatalf("apply and revert changed the stored commitment")
		}

		_, wasApplied, err := utxoDatabase.RevertTransaction(conflict)
		if err != nil {
			t.Fatalf("RevertTransaction: %+v", err)
		}
		if wasApplied {
			t.Fatalf("reverting a skipped transaction reported it as applied")
		}
	})
}

func TestCommitmentSurvivesReopen(t *testing.T) {
	alice := newTestKey(t)
	db, err := ldb.NewMemLevelDB()
	if err != nil {
		t.Fatalf("NewMemLevelDB: %+v", err)
	}
	defer db.Close()

	utxoDatabase := newTestUTXODatabase(t, db)
	_, err = utxoDatabase.ApplyTransaction(transactionhelper.NewCoinbaseTransaction(alice.address, 5, nil))
	if err != nil {
		t.Fatalf("ApplyTransaction: %+v", err)
	}
	expected, _ := utxoDatabase.Commitment()

	reopened := newTestUTXODatabase(t, db)
	actual, _ := reopened.Commitment()
	if !actual.Equal(expected) {
		t.Fatalf("expected commitment %s after reopening, got %s", expected, actual)
	}
	expectBalance(t, reopened, alice.address, 5)
}

// TestApplyRevertRestoresState checks that reverting any double spend free
// sequence of transactions restores the UTXO set bit for bit.
func TestApplyRevertRestoresState(t *testing.T) {
	keys := []*testKey{newTestKey(t), newTestKey(t), newTestKey(t)}

	rapid.Check(t, func(rt *rapid.T) {
		db, err := ldb.NewMemLevelDB()
		if err != nil {
			rt.Fatalf("NewMemLevelDB: %+v", err)
		}
		defer db.Close()
		utxoDatabase, err := New(db, 16)
		if err != nil {
			rt.Fatalf("New: %+v", err)
		}

		type ownedOutput struct {
			outpoint *externalapi.DomainOutpoint
			value    uint64
			owner    int
		}
		var available []*ownedOutput
		addOutputs := func(transaction *externalapi.DomainTransaction) {
			for i, output := range transaction.Outputs {
				for owner, key := range keys {
					if key.address == output.Address {
						available = append(available, &ownedOutput{outpointOf(transaction, uint32(i)), output.Value, owner})
					}
				}
			}
		}

		// A prefix that stays applied
		prefixLength := rapid.IntRange(1, 3).Draw(rt, "prefixLength")
		for i := 0; i < prefixLength; i++ {
			owner := rapid.IntRange(0, len(keys)-1).Draw(rt, "prefixOwner")
			coinbase := transactionhelper.NewCoinbaseTransaction(keys[owner].address,
				rapid.Uint64Range(1, 1000).Draw(rt, "prefixValue"), []byte{0, byte(i)})
			if _, err := utxoDatabase.ApplyTransaction(coinbase); err != nil {
				rt.Fatalf("ApplyTransaction: %+v", err)
			}
			addOutputs(coinbase)
		}
		commitmentBefore, _ := utxoDatabase.Commitment()
		balancesBefore := make([]uint64, len(keys))
		for i, key := range keys {
			balancesBefore[i], _ = utxoDatabase.Balance(key.address)
		}

		var transactions []*externalapi.DomainTransaction
		steps := rapid.IntRange(1, 8).Draw(rt, "steps")
		for step := 0; step < steps; step++ {
			var transaction *externalapi.DomainTransaction
			if len(available) == 0 || rapid.Bool().Draw(rt, "isCoinbase") {
				owner := rapid.IntRange(0, len(keys)-1).Draw(rt, "coinbaseOwner")
				transaction = transactionhelper.NewCoinbaseTransaction(keys[owner].address,
					rapid.Uint64Range(1, 1000).Draw(rt, "coinbaseValue"), []byte{1, byte(step)})
			} else {
				index := rapid.IntRange(0, len(available)-1).Draw(rt, "spentIndex")
				spent := available[index]
				available = append(available[:index], available[index+1:]...)
				recipient := rapid.IntRange(0, len(keys)-1).Draw(rt, "recipient")
				paid := rapid.Uint64Range(0, spent.value).Draw(rt, "paid")
				var err error
				transaction, err = transactionhelper.NewSignedTransaction(keys[spent.owner].key,
					[]*externalapi.DomainOutpoint{spent.outpoint},
					[]*externalapi.DomainTransactionOutput{
						{Value: paid, Address: keys[recipient].address},
						{Value: spent.value - paid, Address: keys[spent.owner].address},
					})
				if err != nil {
					rt.Fatalf("NewSignedTransaction: %+v", err)
				}
			}
			transactions = append(transactions, transaction)
			addOutputs(transaction)
		}

		result, err := utxoDatabase.Apply(transactions)
		if err != nil {
			rt.Fatalf("Apply: %+v", err)
		}
		if len(result.Skipped) != 0 {
			rt.Fatalf("a double spend free sequence had skipped transactions: %v", result.Skipped[0].Reason)
		}
		_, err = utxoDatabase.Revert(transactions)
		if err != nil {
			rt.Fatalf("Revert: %+v", err)
		}

		commitmentAfter, _ := utxoDatabase.Commitment()
		if !commitmentAfter.Equal(commitmentBefore) {
			rt.Fatalf("commitment changed from %s to %s", commitmentBefore, commitmentAfter)
		}
		for i, key := range keys {
			balance, _ := utxoDatabase.Balance(key.address)
			if balance != balancesBefore[i] {
				rt.Fatalf("balance of key %d changed from %d to %d", i, balancesBefore[i], balance)
			}
		}
		for _, transaction := range transactions {
			isUnspent, _ := utxoDatabase.IsUnspent(outpointOf(transaction, 0))
			if isUnspent {
				rt.Fatalf("output of reverted transaction %s is unspent", consensushashing.TransactionID(transaction))
			}
		}
	})
}
