package badgerdb

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/infrastructure/db/database"
)

// BadgerDB is a database.Database backed by badger.
type BadgerDB struct {
	db *badger.DB
}

// Compile time check to make sure BadgerDB implements database.Database.
var _ database.Database = (*BadgerDB)(nil)

// NewBadgerDB opens (or creates) a badger database in the given directory.
func NewBadgerDB(path string) (*BadgerDB, error) {
	return open(badger.DefaultOptions(path).WithLogger(nil))
}

// NewMemBadgerDB opens a badger database kept entirely in memory.
func NewMemBadgerDB() (*BadgerDB, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(options badger.Options) (*BadgerDB, error) {
	db, err := badger.Open(options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger at %q", options.Dir)
	}
	return &BadgerDB{db: db}, nil
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	return errors.WithStack(b.db.Close())
}

// Put sets the value for the given key.
func (b *BadgerDB) Put(key *database.Key, value []byte) error {
	return errors.WithStack(b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Bytes(), value)
	}))
}

// Get gets the value for the given key. It returns ErrNotFound if the key
// does not exist.
func (b *BadgerDB) Get(key *database.Key) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		value, err = get(txn, key)
		return err
	})
	return value, err
}

// Has returns whether the key exists.
func (b *BadgerDB) Has(key *database.Key) (bool, error) {
	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		exists, err = has(txn, key)
		return err
	})
	return exists, err
}

// Delete deletes the key. Deleting a missing key is not an error.
func (b *BadgerDB) Delete(key *database.Key) error {
	return errors.WithStack(b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key.Bytes())
	}))
}

// Cursor opens a cursor over the given bucket on a read-only view of the
// database. The view is released by closing the cursor.
func (b *BadgerDB) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	txn := b.db.NewTransaction(false)
	return newCursor(txn, bucket, txn.Discard), nil
}

// Begin begins a read-write transaction.
func (b *BadgerDB) Begin() (database.Transaction, error) {
	return &transaction{txn: b.db.NewTransaction(true)}, nil
}

func get(txn *badger.Txn, key *database.Key) ([]byte, error) {
	item, err := txn.Get(key.Bytes())
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.Wrapf(database.ErrNotFound, "key %s not found", key)
		}
		return nil, errors.WithStack(err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return value, nil
}

func has(txn *badger.Txn, key *database.Key) (bool, error) {
	_, err := txn.Get(key.Bytes())
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	return true, nil
}
