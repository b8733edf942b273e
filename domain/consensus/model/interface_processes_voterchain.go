package model

import "github.com/prism-dag/prismd/domain/consensus/model/externalapi"

// VoterChain is one of the independent chains of voter blocks
type VoterChain interface {
	ChainID() uint16
	ValidateVotes(parentHash *externalapi.DomainHash, votes []*Vote) error
	AddNode(node *VoterNode) (*VoteDelta, error)
	BestNode() *VoterNode
	ChainLength() uint64
	Node(blockHash *externalapi.DomainHash) (*VoterNode, bool)
	CastVote(proposerLevel uint64) (vote *Vote, depth uint64, ok bool)
}

// Vote is a vote of a voter block for a proposer block
type Vote struct {
	Proposer      *externalapi.DomainHash
	ProposerLevel uint64
	VoterLevel    uint64
}

// VoterNode is the position of a voter block in its chain
type VoterNode struct {
	ChainID uint16
	Hash    *externalapi.DomainHash
	Level   uint64
	Parent  *externalapi.DomainHash

	// Votes holds the effective votes of the node. It is filled by the
	// chain when the node is added.
	Votes []*Vote

	// MaxVotedLevel is the highest proposer level voted on by this node
	// or any of its ancestors.
	MaxVotedLevel uint64
}

// VoteDelta is the change to a chain's main branch votes caused by adding
// one node. A plain extension only publishes; a reorg retracts the votes
// of the abandoned branch and publishes those of the new branch.
type VoteDelta struct {
	ChainID   uint16
	Retracted []*Vote
	Published []*Vote
	BestLevel uint64
	IsReorg   bool
}

// IsEmpty returns whether the delta changes anything
func (delta *VoteDelta) IsEmpty() bool {
	return len(delta.Retracted) == 0 && len(delta.Published) == 0 && !delta.IsReorg
}
