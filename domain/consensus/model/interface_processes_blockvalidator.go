package model

import "github.com/prism-dag/prismd/domain/consensus/model/externalapi"

// BlockValidator exposes a set of validation classes, after which
// it's possible to determine whether a block is valid
type BlockValidator interface {
	// ValidateBlockInIsolation runs the checks that don't need the block's
	// dependencies and returns the block hash.
	ValidateBlockInIsolation(block *externalapi.DomainBlock) (*externalapi.DomainHash, error)
	// ValidateBlockInContext runs the checks that need every dependency
	// to be connected.
	ValidateBlockInContext(block *externalapi.DomainBlock) error
}
