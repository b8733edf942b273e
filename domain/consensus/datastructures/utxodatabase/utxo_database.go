package utxodatabase

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
	"github.com/prism-dag/prismd/domain/consensus/utils/multiset"
	"github.com/prism-dag/prismd/domain/consensus/utils/serialization"
	"github.com/prism-dag/prismd/domain/consensus/utils/txauth"
	"github.com/prism-dag/prismd/domain/consensus/utils/utxolrucache"
	"github.com/prism-dag/prismd/infrastructure/db/database"
)

var utxoBucket = database.MakeBucket([]byte("utxo"))
var addressBucket = database.MakeBucket([]byte("address"))
var undoBucket = database.MakeBucket([]byte("undo"))
var commitmentKey = database.MakeBucket(nil).Key([]byte("utxo-commitment"))

// utxoDatabase keeps the UTXO set of the ledger on top of an abstract
// key-value store. Every transaction is applied in its own database
// transaction together with its undo record and the updated commitment.
type utxoDatabase struct {
	// lock serializes writers against readers so the cache never
	// observes a half applied transaction
	lock     sync.RWMutex
	db       database.Database
	cache    *utxolrucache.LRUCache
	multiset *multiset.Multiset
}

// New instantiates a new UTXODatabase over db, loading the commitment
// stored by a previous instance if there is one.
func New(db database.Database, cacheSize int) (model.UTXODatabase, error) {
	cache, err := utxolrucache.New(cacheSize)
	if err != nil {
		return nil, err
	}

	ms := multiset.New()
	commitmentBytes, err := db.Get(commitmentKey)
	if err == nil {
		ms, err = multiset.FromBytes(commitmentBytes)
		if err != nil {
			return nil, err
		}
	} else if !database.IsNotFoundError(err) {
		return nil, err
	}

	return &utxoDatabase{
		db:       db,
		cache:    cache,
		multiset: ms,
	}, nil
}

func utxoKey(outpoint *externalapi.DomainOutpoint) *database.Key {
	return utxoBucket.Key(serialization.OutpointToBytes(outpoint))
}

func addressKey(address externalapi.Address, outpoint *externalapi.DomainOutpoint) *database.Key {
	return addressBucket.Bucket(address[:]).Key(serialization.OutpointToBytes(outpoint))
}

func undoKey(txID *externalapi.DomainTransactionID) *database.Key {
	return undoBucket.Key((*externalapi.DomainHash)(txID).ByteSlice())
}

// ApplyTransaction applies a single transaction atomically. A transaction
// that breaks a rule leaves the UTXO set untouched and returns a RuleError.
func (udb *utxoDatabase) ApplyTransaction(transaction *externalapi.DomainTransaction) (*externalapi.UTXODiff, error) {
	udb.lock.Lock()
	defer udb.lock.Unlock()

	return udb.applyTransaction(transaction)
}

// Apply applies every transaction on its own, skipping the ones that break
// a rule. On any other error the transactions applied so far are returned
// along with it, and stay applied.
func (udb *utxoDatabase) Apply(transactions []*externalapi.DomainTransaction) (*model.ApplyResult, error) {
	udb.lock.Lock()
	defer udb.lock.Unlock()

	result := &model.ApplyResult{Diff: &externalapi.UTXODiff{}}
	for _, transaction := range transactions {
		diff, err := udb.applyTransaction(transaction)
		if err != nil {
			if !ruleerrors.IsRuleError(err) {
				return result, err
			}
			result.Skipped = append(result.Skipped, &model.SkippedTransaction{Transaction: transaction, Reason: err})
			continue
		}
		result.Applied = append(result.Applied, transaction)
		result.Diff.Append(diff)
	}
	return result, nil
}

func (udb *utxoDatabase) applyTransaction(transaction *externalapi.DomainTransaction) (*externalapi.UTXODiff, error) {
	txID := consensushashing.TransactionID(transaction)

	spent, err := udb.checkInputs(txID, transaction)
	if err != nil {
		return nil, err
	}

	added, err := udb.checkOutputs(txID, transaction)
	if err != nil {
		return nil, err
	}

	dbTx, err := udb.db.Begin()
	if err != nil {
		return nil, err
	}
	defer dbTx.RollbackUnlessClosed()

	ms := udb.multiset.Clone()
	for _, pair := range spent {
		err := removeEntry(dbTx, ms, pair)
		if err != nil {
			return nil, err
		}
	}
	for _, pair := range added {
		err := addEntry(dbTx, ms, pair)
		if err != nil {
			return nil, err
		}
	}
	err = dbTx.Put(undoKey(txID), serializeUndo(spent))
	if err != nil {
		return nil, err
	}
	err = dbTx.Put(commitmentKey, ms.Serialize())
	if err != nil {
		return nil, err
	}
	err = dbTx.Commit()
	if err != nil {
		return nil, err
	}

	udb.multiset = ms
	for _, pair := range spent {
		udb.cache.Remove(pair.Outpoint)
	}
	for _, pair := range added {
		udb.cache.Add(pair.Outpoint, pair.UTXOEntry)
	}

	return &externalapi.UTXODiff{ToAdd: added, ToRemove: spent}, nil
}

// checkInputs returns the entries spent by transaction
func (udb *utxoDatabase) checkInputs(txID *externalapi.DomainTransactionID,
	transaction *externalapi.DomainTransaction) ([]*externalapi.OutpointAndUTXOEntryPair, error) {

	if transaction.IsCoinbase() {
		return []*externalapi.OutpointAndUTXOEntryPair{}, nil
	}

	existingOutpoints := make(map[externalapi.DomainOutpoint]struct{}, len(transaction.Inputs))
	for _, input := range transaction.Inputs {
		if _, exists := existingOutpoints[input.PreviousOutpoint]; exists {
			return nil, errors.Wrapf(ruleerrors.ErrDuplicateTxInputs, "transaction %s references outpoint %s "+
				"more than once", txID, input.PreviousOutpoint)
		}
		existingOutpoints[input.PreviousOutpoint] = struct{}{}
	}

	spent := make([]*externalapi.OutpointAndUTXOEntryPair, 0, len(transaction.Inputs))
	var missingOutpoints []*externalapi.DomainOutpoint
	for _, input := range transaction.Inputs {
		outpoint := input.PreviousOutpoint
		entry, found, err := udb.utxoEntry(&outpoint)
		if err != nil {
			return nil, err
		}
		if !found {
			missingOutpoints = append(missingOutpoints, &outpoint)
			continue
		}
		spent = append(spent, &externalapi.OutpointAndUTXOEntryPair{Outpoint: &outpoint, UTXOEntry: entry})
	}
	if len(missingOutpoints) > 0 {
		return nil, ruleerrors.NewErrMissingTxOut(missingOutpoints)
	}

	totalIn := uint64(0)
	for i, pair := range spent {
		err := txauth.VerifyInput(txID, transaction.Inputs[i], pair.UTXOEntry.Address)
		if err != nil {
			return nil, err
		}
		if totalIn+pair.UTXOEntry.Amount < totalIn {
			return nil, errors.Wrapf(ruleerrors.ErrSpendTooHigh, "total input value of transaction %s "+
				"overflows", txID)
		}
		totalIn += pair.UTXOEntry.Amount
	}

	totalOut, ok := transaction.TotalOutputValue()
	if !ok || totalOut > totalIn {
		return nil, errors.Wrapf(ruleerrors.ErrSpendTooHigh, "transaction %s spends more than "+
			"its inputs are worth (%d)", txID, totalIn)
	}

	return spent, nil
}

// checkOutputs returns the entries created by transaction
func (udb *utxoDatabase) checkOutputs(txID *externalapi.DomainTransactionID,
	transaction *externalapi.DomainTransaction) ([]*externalapi.OutpointAndUTXOEntryPair, error) {

	wasApplied, err := udb.db.Has(undoKey(txID))
	if err != nil {
		return nil, err
	}
	if wasApplied {
		return nil, errors.Wrapf(ruleerrors.ErrDuplicateOutput, "transaction %s was already applied", txID)
	}

	isCoinbase := transaction.IsCoinbase()
	added := make([]*externalapi.OutpointAndUTXOEntryPair, len(transaction.Outputs))
	for i, output := range transaction.Outputs {
		outpoint := externalapi.NewDomainOutpoint(txID, uint32(i))
		_, found, err := udb.utxoEntry(outpoint)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, errors.Wrapf(ruleerrors.ErrDuplicateOutput, "output %s already exists", outpoint)
		}
		added[i] = &externalapi.OutpointAndUTXOEntryPair{
			Outpoint: outpoint,
			UTXOEntry: &externalapi.UTXOEntry{
				Amount:     output.Value,
				Address:    output.Address,
				IsCoinbase: isCoinbase,
			},
		}
	}
	return added, nil
}

// RevertTransaction undoes an applied transaction. It returns false if the
// transaction has no undo record.
func (udb *utxoDatabase) RevertTransaction(transaction *externalapi.DomainTransaction) (
	*externalapi.UTXODiff, bool, error) {

	udb.lock.Lock()
	defer udb.lock.Unlock()

	return udb.revertTransaction(transaction)
}

// Revert undoes transactions in reverse order. Transactions that were
// never applied are ignored.
func (udb *utxoDatabase) Revert(transactions []*externalapi.DomainTransaction) (*externalapi.UTXODiff, error) {
	udb.lock.Lock()
	defer udb.lock.Unlock()

	diff := &externalapi.UTXODiff{}
	for i := len(transactions) - 1; i >= 0; i-- {
		transactionDiff, _, err := udb.revertTransaction(transactions[i])
		if err != nil {
			return nil, err
		}
		if transactionDiff != nil {
			diff.Append(transactionDiff)
		}
	}
	return diff, nil
}

func (udb *utxoDatabase) revertTransaction(transaction *externalapi.DomainTransaction) (
	*externalapi.UTXODiff, bool, error) {

	txID := consensushashing.TransactionID(transaction)
	undoBytes, err := udb.db.Get(undoKey(txID))
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	restored, err := deserializeUndo(undoBytes)
	if err != nil {
		return nil, false, err
	}

	removed := make([]*externalapi.OutpointAndUTXOEntryPair, len(transaction.Outputs))
	for i := range transaction.Outputs {
		outpoint := externalapi.NewDomainOutpoint(txID, uint32(i))
		entry, found, err := udb.utxoEntry(outpoint)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, errors.Errorf("cannot revert transaction %s: output %s was spent "+
				"by a transaction that wasn't reverted", txID, outpoint)
		}
		removed[i] = &externalapi.OutpointAndUTXOEntryPair{Outpoint: outpoint, UTXOEntry: entry}
	}

	dbTx, err := udb.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer dbTx.RollbackUnlessClosed()

	ms := udb.multiset.Clone()
	for _, pair := range removed {
		err := removeEntry(dbTx, ms, pair)
		if err != nil {
			return nil, false, err
		}
	}
	for _, pair := range restored {
		err := addEntry(dbTx, ms, pair)
		if err != nil {
			return nil, false, err
		}
	}
	err = dbTx.Delete(undoKey(txID))
	if err != nil {
		return nil, false, err
	}
	err = dbTx.Put(commitmentKey, ms.Serialize())
	if err != nil {
		return nil, false, err
	}
	err = dbTx.Commit()
	if err != nil {
		return nil, false, err
	}

	udb.multiset = ms
	for _, pair := range removed {
		udb.cache.Remove(pair.Outpoint)
	}
	for _, pair := range restored {
		udb.cache.Add(pair.Outpoint, pair.UTXOEntry)
	}

	log.Tracef("Reverted transaction %s", txID)
	return &externalapi.UTXODiff{ToAdd: restored, ToRemove: removed}, true, nil
}

func addEntry(dbTx database.Transaction, ms *multiset.Multiset, pair *externalapi.OutpointAndUTXOEntryPair) error {
	err := dbTx.Put(utxoKey(pair.Outpoint), serializeUTXOEntry(pair.UTXOEntry))
	if err != nil {
		return err
	}
	var amountBytes [8]byte
	binary.LittleEndian.PutUint64(amountBytes[:], pair.UTXOEntry.Amount)
	err = dbTx.Put(addressKey(pair.UTXOEntry.Address, pair.Outpoint), amountBytes[:])
	if err != nil {
		return err
	}
	ms.Add(serializeOutpointAndEntry(pair.Outpoint, pair.UTXOEntry))
	return nil
}

func removeEntry(dbTx database.Transaction, ms *multiset.Multiset, pair *externalapi.OutpointAndUTXOEntryPair) error {
	err := dbTx.Delete(utxoKey(pair.Outpoint))
	if err != nil {
		return err
	}
	err = dbTx.Delete(addressKey(pair.UTXOEntry.Address, pair.Outpoint))
	if err != nil {
		return err
	}
	ms.Remove(serializeOutpointAndEntry(pair.Outpoint, pair.UTXOEntry))
	return nil
}

// utxoEntry MUST be called with the lock held, for reads or writes.
func (udb *utxoDatabase) utxoEntry(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	if entry, ok := udb.cache.Get(outpoint); ok {
		return entry, true, nil
	}

	entryBytes, err := udb.db.Get(utxoKey(outpoint))
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	entry, err := deserializeUTXOEntry(entryBytes)
	if err != nil {
		return nil, false, err
	}
	udb.cache.Add(outpoint, entry)
	return entry, true, nil
}

// UTXOEntry returns the unspent entry of outpoint
func (udb *utxoDatabase) UTXOEntry(outpoint *externalapi.DomainOutpoint) (*externalapi.UTXOEntry, bool, error) {
	udb.lock.RLock()
	defer udb.lock.RUnlock()

	return udb.utxoEntry(outpoint)
}

// IsUnspent returns whether outpoint is in the UTXO set
func (udb *utxoDatabase) IsUnspent(outpoint *externalapi.DomainOutpoint) (bool, error) {
	_, found, err := udb.UTXOEntry(outpoint)
	return found, err
}

// Balance returns the sum of the unspent outputs paying to address
func (udb *utxoDatabase) Balance(address externalapi.Address) (uint64, error) {
	udb.lock.RLock()
	defer udb.lock.RUnlock()

	cursor, err := udb.db.Cursor(addressBucket.Bucket(address[:]))
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	balance := uint64(0)
	for ok := cursor.First(); ok; ok = cursor.Next() {
		amountBytes, err := cursor.Value()
		if err != nil {
			return 0, err
		}
		if len(amountBytes) != 8 {
			return 0, errors.Errorf("address index value is %d bytes long", len(amountBytes))
		}
		balance += binary.LittleEndian.Uint64(amountBytes)
	}
	return balance, nil
}

// UTXOsByAddress returns the unspent outputs paying to address, ordered
// by outpoint
func (udb *utxoDatabase) UTXOsByAddress(address externalapi.Address) ([]*externalapi.OutpointAndUTXOEntryPair, error) {
	udb.lock.RLock()
	defer udb.lock.RUnlock()

	cursor, err := udb.db.Cursor(addressBucket.Bucket(address[:]))
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var pairs []*externalapi.OutpointAndUTXOEntryPair
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return nil, err
		}
		outpoint, err := serialization.OutpointFromBytes(key.Suffix())
		if err != nil {
			return nil, err
		}
		entry, found, err := udb.utxoEntry(outpoint)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.Errorf("address index references missing outpoint %s", outpoint)
		}
		pairs = append(pairs, &externalapi.OutpointAndUTXOEntryPair{Outpoint: outpoint, UTXOEntry: entry})
	}
	return pairs, nil
}

// Commitment returns the multiset hash of the whole UTXO set
func (udb *utxoDatabase) Commitment() (*externalapi.DomainHash, error) {
	udb.lock.RLock()
	defer udb.lock.RUnlock()

	return udb.multiset.Hash(), nil
}
