package badgerdb

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/infrastructure/db/database"
)

// transaction wraps a read-write badger transaction. Unlike the leveldb
// driver, reads inside a badger transaction observe its own writes.
type transaction struct {
	txn      *badger.Txn
	isClosed bool
}

func (tx *transaction) Put(key *database.Key, value []byte) error {
	if tx.isClosed {
		return errors.New("cannot put into a closed transaction")
	}
	return errors.WithStack(tx.txn.Set(key.Bytes(), value))
}

func (tx *transaction) Get(key *database.Key) ([]byte, error) {
	if tx.isClosed {
		return nil, errors.New("cannot get from a closed transaction")
	}
	return get(tx.txn, key)
}

func (tx *transaction) Has(key *database.Key) (bool, error) {
	if tx.isClosed {
		return false, errors.New("cannot has from a closed transaction")
	}
	return has(tx.txn, key)
}

func (tx *transaction) Delete(key *database.Key) error {
	if tx.isClosed {
		return errors.New("cannot delete from a closed transaction")
	}
	return errors.WithStack(tx.txn.Delete(key.Bytes()))
}

func (tx *transaction) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	if tx.isClosed {
		return nil, errors.New("cannot open a cursor from a closed transaction")
	}
	return newCursor(tx.txn, bucket, nil), nil
}

func (tx *transaction) Commit() error {
	if tx.isClosed {
		return errors.New("cannot commit a closed transaction")
	}
	tx.isClosed = true
	return errors.WithStack(tx.txn.Commit())
}

func (tx *transaction) Rollback() error {
	if tx.isClosed {
		return errors.New("cannot rollback a closed transaction")
	}
	tx.isClosed = true
	tx.txn.Discard()
	return nil
}

func (tx *transaction) RollbackUnlessClosed() error {
	if tx.isClosed {
		return nil
	}
	return tx.Rollback()
}
