package blockstore

import (
	"sync"

	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/hashset"
)

// blockStore represents a store of blocks
type blockStore struct {
	lock     sync.RWMutex
	blocks   map[externalapi.DomainHash]*externalapi.DomainBlock
	children map[externalapi.DomainHash]hashset.HashSet
}

// New instantiates a new BlockStore
func New() model.BlockStore {
	return &blockStore{
		blocks:   make(map[externalapi.DomainHash]*externalapi.DomainBlock),
		children: make(map[externalapi.DomainHash]hashset.HashSet),
	}
}

// Insert adds a connected block to the arena and indexes it as a child
// of every block it depends on. Inserting a known block is a no-op.
func (bs *blockStore) Insert(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock) {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	if _, ok := bs.blocks[*blockHash]; ok {
		return
	}
	bs.blocks[*blockHash] = block

	for _, dependency := range block.Dependencies() {
		children, ok := bs.children[*dependency]
		if !ok {
			children = hashset.New()
			bs.children[*dependency] = children
		}
		children.Add(blockHash)
	}
}

// Block gets the block associated with the given blockHash
func (bs *blockStore) Block(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, bool) {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	block, ok := bs.blocks[*blockHash]
	return block, ok
}

// Has returns whether a block with a given hash exists in the store.
func (bs *blockStore) Has(blockHash *externalapi.DomainHash) bool {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	_, ok := bs.blocks[*blockHash]
	return ok
}

// Children returns the blocks that depend on blockHash, sorted by hash.
func (bs *blockStore) Children(blockHash *externalapi.DomainHash) []*externalapi.DomainHash {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	children, ok := bs.children[*blockHash]
	if !ok {
		return []*externalapi.DomainHash{}
	}
	return children.ToSortedSlice()
}

// Count returns the number of connected blocks
func (bs *blockStore) Count() int {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	return len(bs.blocks)
}
