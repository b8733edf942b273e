package testutils

import (
	"encoding/binary"
	"testing"

	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
	"github.com/prism-dag/prismd/domain/consensus/utils/pow"
	"github.com/prism-dag/prismd/domain/consensus/utils/transactionhelper"
	"github.com/prism-dag/prismd/domain/dagconfig"
)

// BlockBuilder builds blocks that pass the proof of work check of the
// network it was created for. Every block it builds gets a nonce no other
// block of the builder got, so two blocks with the same parent and content
// still have different hashes. A BlockBuilder is not safe for concurrent use.
type BlockBuilder struct {
	params    *dagconfig.Params
	sortition *pow.Sortition
	nonce     uint32
}

// NewBlockBuilder creates a BlockBuilder for params
func NewBlockBuilder(t testing.TB, params *dagconfig.Params) *BlockBuilder {
	sortition, err := pow.NewSortition(params.PowDifficulty, params.NumVoterChains)
	if err != nil {
		t.Fatalf("NewSortition: %+v", err)
	}
	return &BlockBuilder{
		params:    params,
		sortition: sortition,
	}
}

// Build returns a block on parent holding content, with a nonce that
// places its hash in the sortition slice of its role.
func (bb *BlockBuilder) Build(parent *externalapi.DomainHash, content externalapi.BlockContent) *externalapi.DomainBlock {
	block := &externalapi.DomainBlock{
		Header: &externalapi.BlockHeader{
			ParentHash:  parent,
			ContentHash: consensushashing.ContentHash(content),
			Difficulty:  bb.params.PowDifficulty,
		},
		Content: content,
	}
	bb.solve(block)
	return block
}

func (bb *BlockBuilder) solve(block *externalapi.DomainBlock) {
	for {
		block.Header.Nonce = bb.nonce
		bb.nonce++
		if bb.params.SkipProofOfWork || bb.sortition.CheckProofOfWork(block) {
			return
		}
		if bb.nonce == 0 {
			panic("BlockBuilder ran out of nonces")
		}
	}
}

// Proposer builds a proposer block
func (bb *BlockBuilder) Proposer(parent *externalapi.DomainHash,
	transactionRefs []*externalapi.DomainHash, proposerRefs []*externalapi.DomainHash) *externalapi.DomainBlock {

	if transactionRefs == nil {
		transactionRefs = []*externalapi.DomainHash{}
	}
	if proposerRefs == nil {
		proposerRefs = []*externalapi.DomainHash{}
	}
	return bb.Build(parent, &externalapi.ProposerContent{
		TransactionRefs: transactionRefs,
		ProposerRefs:    proposerRefs,
	})
}

// TransactionBlock builds a transaction block holding a coinbase that pays
// the full reward to coinbaseAddress, followed by transactions.
func (bb *BlockBuilder) TransactionBlock(parent *externalapi.DomainHash, coinbaseAddress externalapi.Address,
	transactions ...*externalapi.DomainTransaction) *externalapi.DomainBlock {

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, bb.nonce)
	coinbase := transactionhelper.NewCoinbaseTransaction(coinbaseAddress, bb.params.CoinbaseReward, payload)

	allTransactions := make([]*externalapi.DomainTransaction, 0, len(transactions)+1)
	allTransactions = append(allTransactions, coinbase)
	allTransactions = append(allTransactions, transactions...)
	return bb.Build(parent, &externalapi.TransactionContent{Transactions: allTransactions})
}

// Voter builds a voter block extending voterParent on chain chainNumber
func (bb *BlockBuilder) Voter(parent *externalapi.DomainHash, chainNumber uint16,
	voterParent *externalapi.DomainHash, votes ...*externalapi.DomainHash) *externalapi.DomainBlock {

	if votes == nil {
		votes = []*externalapi.DomainHash{}
	}
	return bb.Build(parent, &externalapi.VoterContent{
		ChainNumber: chainNumber,
		VoterParent: voterParent,
		Votes:       votes,
	})
}

// CoinbaseOutpoint returns the outpoint of the coinbase output of a block
// built by TransactionBlock
func CoinbaseOutpoint(block *externalapi.DomainBlock) *externalapi.DomainOutpoint {
	content := block.Content.(*externalapi.TransactionContent)
	return externalapi.NewDomainOutpoint(consensushashing.TransactionID(content.Transactions[0]), 0)
}

// Hashes returns the hashes of blocks
func Hashes(blocks ...*externalapi.DomainBlock) []*externalapi.DomainHash {
	hashes := make([]*externalapi.DomainHash, len(blocks))
	for i, block := range blocks {
		hashes[i] = consensushashing.BlockHash(block)
	}
	return hashes
}
