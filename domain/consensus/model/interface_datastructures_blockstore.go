package model

import "github.com/prism-dag/prismd/domain/consensus/model/externalapi"

// BlockStore represents the arena of connected blocks
type BlockStore interface {
	Insert(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock)
	Block(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, bool)
	Has(blockHash *externalapi.DomainHash) bool
	Children(blockHash *externalapi.DomainHash) []*externalapi.DomainHash
	Count() int
}

// OrphanPool holds blocks whose dependencies are not all connected yet
type OrphanPool interface {
	Add(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock,
		missing []*externalapi.DomainHash) (evicted []*externalapi.DomainHash)
	Has(blockHash *externalapi.DomainHash) bool
	Count() int
	ResolveDependency(dependency *externalapi.DomainHash) []*OrphanBlock
	ExpireOrphans() []*externalapi.DomainHash
}

// OrphanBlock is a block that was waiting in the orphan pool
type OrphanBlock struct {
	Hash  *externalapi.DomainHash
	Block *externalapi.DomainBlock
}
