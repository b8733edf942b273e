package externalapi

import "fmt"

// BlockRole is the role a block claims through its content. The role
// decides which sortition slice its hash must fall in.
type BlockRole uint8

// The three block roles.
const (
	RoleProposer BlockRole = iota
	RoleTransaction
	RoleVoter
)

var blockRoleStrings = map[BlockRole]string{
	RoleProposer:    "proposer",
	RoleTransaction: "transaction",
	RoleVoter:       "voter",
}

func (role BlockRole) String() string {
	if s, ok := blockRoleStrings[role]; ok {
		return s
	}
	return fmt.Sprintf("<unknown role %d>", role)
}

// BlockHeader is the mined part of a block. A block's hash is the hash of
// its header alone; the content is bound through ContentHash.
type BlockHeader struct {
	ParentHash  *DomainHash
	ContentHash *DomainHash
	Difficulty  uint32
	Nonce       uint32
}

// Clone returns a copy of the header.
func (header *BlockHeader) Clone() *BlockHeader {
	clone := *header
	return &clone
}

// DomainBlock is a block of any role.
type DomainBlock struct {
	Header  *BlockHeader
	Content BlockContent
}

// Role returns the role declared by the block's content.
func (block *DomainBlock) Role() BlockRole {
	return block.Content.Role()
}

// BlockContent is one of *ProposerContent, *TransactionContent or
// *VoterContent. The set is closed: only this package can add variants.
type BlockContent interface {
	Role() BlockRole
	isBlockContent()
}

// ProposerContent orders transaction blocks and other proposer blocks.
type ProposerContent struct {
	TransactionRefs []*DomainHash
	ProposerRefs    []*DomainHash
}

// Role implements BlockContent.
func (*ProposerContent) Role() BlockRole { return RoleProposer }
func (*ProposerContent) isBlockContent() {}

// TransactionContent carries the transaction payload. The first
// transaction is the block's coinbase.
type TransactionContent struct {
	Transactions []*DomainTransaction
}

// Role implements BlockContent.
func (*TransactionContent) Role() BlockRole { return RoleTransaction }
func (*TransactionContent) isBlockContent() {}

// VoterContent extends voter chain ChainNumber and votes for proposer blocks.
type VoterContent struct {
	ChainNumber uint16
	VoterParent *DomainHash
	Votes       []*DomainHash
}

// Role implements BlockContent.
func (*VoterContent) Role() BlockRole { return RoleVoter }
func (*VoterContent) isBlockContent() {}

// References returns every hash the block depends on besides its parent,
// in content order.
func (block *DomainBlock) References() []*DomainHash {
	switch content := block.Content.(type) {
	case *ProposerContent:
		references := make([]*DomainHash, 0, len(content.ProposerRefs)+len(content.TransactionRefs))
		references = append(references, content.ProposerRefs...)
		return append(references, content.TransactionRefs...)
	case *VoterContent:
		references := make([]*DomainHash, 0, len(content.Votes)+1)
		references = append(references, content.VoterParent)
		return append(references, content.Votes...)
	case *TransactionContent:
		return nil
	}
	panic(fmt.Sprintf("unexpected block content %T", block.Content))
}

// Dependencies returns the parent hash followed by References, skipping
// the zero hash.
func (block *DomainBlock) Dependencies() []*DomainHash {
	dependencies := make([]*DomainHash, 0, 1)
	if !block.Header.ParentHash.IsZero() {
		dependencies = append(dependencies, block.Header.ParentHash)
	}
	for _, reference := range block.References() {
		if !reference.IsZero() {
			dependencies = append(dependencies, reference)
		}
	}
	return dependencies
}
