package dagconfig

import (
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
)

// GenesisProposerBlock returns the level 0 proposer block. It is empty and
// is never subject to proof of work.
func (p *Params) GenesisProposerBlock() *externalapi.DomainBlock {
	return newGenesisBlock(p, &externalapi.ProposerContent{
		TransactionRefs: []*externalapi.DomainHash{},
		ProposerRefs:    []*externalapi.DomainHash{},
	})
}

// GenesisVoterBlock returns the root voter block of the given chain.
func (p *Params) GenesisVoterBlock(chainNumber uint16) *externalapi.DomainBlock {
	return newGenesisBlock(p, &externalapi.VoterContent{
		ChainNumber: chainNumber,
		VoterParent: externalapi.ZeroHash,
		Votes:       []*externalapi.DomainHash{},
	})
}

// GenesisVoterBlocks returns the root voter blocks of every chain.
func (p *Params) GenesisVoterBlocks() []*externalapi.DomainBlock {
	blocks := make([]*externalapi.DomainBlock, p.NumVoterChains)
	for i := range blocks {
		blocks[i] = p.GenesisVoterBlock(uint16(i))
	}
	return blocks
}

func newGenesisBlock(p *Params, content externalapi.BlockContent) *externalapi.DomainBlock {
	return &externalapi.DomainBlock{
		Header: &externalapi.BlockHeader{
			ParentHash:  externalapi.ZeroHash,
			ContentHash: consensushashing.ContentHash(content),
			Difficulty:  p.PowDifficulty,
			Nonce:       0,
		},
		Content: content,
	}
}
