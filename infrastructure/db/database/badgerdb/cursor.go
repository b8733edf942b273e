package badgerdb

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/infrastructure/db/database"
)

// cursor adapts a prefix-bounded badger iterator to database.Cursor. A
// fresh cursor is positioned before the first entry, so the first call to
// Next lands on it.
type cursor struct {
	iterator *badger.Iterator
	bucket   *database.Bucket
	prefix   []byte
	release  func()

	isStarted bool
	isClosed  bool
}

func newCursor(txn *badger.Txn, bucket *database.Bucket, release func()) *cursor {
	prefix := bucket.Path()
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	return &cursor{
		iterator: txn.NewIterator(options),
		bucket:   bucket,
		prefix:   prefix,
		release:  release,
	}
}

func (c *cursor) Next() bool {
	if c.isClosed {
		panic("cannot call next on a closed cursor")
	}
	if !c.isStarted {
		c.isStarted = true
		c.iterator.Rewind()
	} else if c.iterator.Valid() {
		c.iterator.Next()
	}
	return c.iterator.Valid()
}

func (c *cursor) First() bool {
	if c.isClosed {
		panic("cannot call first on a closed cursor")
	}
	c.isStarted = true
	c.iterator.Rewind()
	return c.iterator.Valid()
}

func (c *cursor) Seek(key *database.Key) error {
	if c.isClosed {
		return errors.New("cannot seek a closed cursor")
	}
	c.isStarted = true
	keyBytes := key.Bytes()
	c.iterator.Seek(keyBytes)
	if !c.iterator.Valid() || !bytes.Equal(c.iterator.Item().Key(), keyBytes) {
		return errors.Wrapf(database.ErrNotFound, "key %s not found", key)
	}
	return nil
}

func (c *cursor) Key() (*database.Key, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the key of a closed cursor")
	}
	if !c.isStarted || !c.iterator.Valid() {
		return nil, errors.Wrapf(database.ErrNotFound, "cannot get the key of an exhausted cursor")
	}
	fullKey := c.iterator.Item().KeyCopy(nil)
	return c.bucket.Key(bytes.TrimPrefix(fullKey, c.prefix)), nil
}

func (c *cursor) Value() ([]byte, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the value of a closed cursor")
	}
	if !c.isStarted || !c.iterator.Valid() {
		return nil, errors.Wrapf(database.ErrNotFound, "cannot get the value of an exhausted cursor")
	}
	value, err := c.iterator.Item().ValueCopy(nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return value, nil
}

func (c *cursor) Close() error {
	if c.isClosed {
		return errors.New("cannot close an already closed cursor")
	}
	c.isClosed = true
	c.iterator.Close()
	if c.release != nil {
		c.release()
	}
	return nil
}
