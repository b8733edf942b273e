package voterchain

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
)

type voterChain struct {
	chainID uint16

	lock         sync.RWMutex
	nodes        map[externalapi.DomainHash]*model.VoterNode
	best         *model.VoterNode
	votesByLevel map[uint64]*model.Vote
}

// New instantiates a new VoterChain rooted at the chain's genesis voter block
func New(chainID uint16, genesisHash *externalapi.DomainHash) model.VoterChain {
	genesis := &model.VoterNode{
		ChainID: chainID,
		Hash:    genesisHash,
		Level:   0,
		Parent:  externalapi.ZeroHash,
		Votes:   []*model.Vote{},
	}
	return &voterChain{
		chainID:      chainID,
		nodes:        map[externalapi.DomainHash]*model.VoterNode{*genesisHash: genesis},
		best:         genesis,
		votesByLevel: make(map[uint64]*model.Vote),
	}
}

func (vc *voterChain) ChainID() uint16 {
	return vc.chainID
}

// ValidateVotes checks that a voter block extending parentHash votes for
// the proposer levels right above its parent's highest voted level, in
// level order and without gaps.
func (vc *voterChain) ValidateVotes(parentHash *externalapi.DomainHash, votes []*model.Vote) error {
	vc.lock.RLock()
	defer vc.lock.RUnlock()

	parent, ok := vc.nodes[*parentHash]
	if !ok {
		return errors.Errorf("parent %s is not in chain %d", parentHash, vc.chainID)
	}
	for i, vote := range votes {
		expectedLevel := parent.MaxVotedLevel + uint64(i) + 1
		if vote.ProposerLevel != expectedLevel {
			return errors.Wrapf(ruleerrors.ErrInvalidReference, "vote %d for %s is at level %d, but "+
				"a block extending %s must vote for level %d next", i, vote.Proposer, vote.ProposerLevel,
				parentHash, expectedLevel)
		}
	}
	return nil
}

// AddNode adds a voter block to the chain. Only node.Hash, node.Parent and
// the proposer and proposer level of node.Votes are read; the chain fills
// in the rest. Adding a known node is a no-op that returns an empty delta.
// Votes that aren't effective are dropped; use ValidateVotes to reject them
// instead.
func (vc *voterChain) AddNode(node *model.VoterNode) (*model.VoteDelta, error) {
	vc.lock.Lock()
	defer vc.lock.Unlock()

	if _, ok := vc.nodes[*node.Hash]; ok {
		return vc.emptyDelta(), nil
	}
	parent, ok := vc.nodes[*node.Parent]
	if !ok {
		return nil, errors.Errorf("parent %s of voter block %s is not in chain %d",
			node.Parent, node.Hash, vc.chainID)
	}

	added := &model.VoterNode{
		ChainID:       vc.chainID,
		Hash:          node.Hash,
		Level:         parent.Level + 1,
		Parent:        parent.Hash,
		MaxVotedLevel: parent.MaxVotedLevel,
	}
	added.Votes = effectiveVotes(node.Votes, parent.MaxVotedLevel, added.Level)
	for _, vote := range added.Votes {
		if vote.ProposerLevel > added.MaxVotedLevel {
			added.MaxVotedLevel = vote.ProposerLevel
		}
	}
	vc.nodes[*added.Hash] = added

	if !isBetter(added, vc.best) {
		return vc.emptyDelta(), nil
	}
	return vc.switchTo(added), nil
}

// effectiveVotes keeps the first vote for every proposer level above
// minLevel. Votes for levels at or below minLevel were already cast by an
// ancestor.
func effectiveVotes(votes []*model.Vote, minLevel uint64, voterLevel uint64) []*model.Vote {
	effective := make([]*model.Vote, 0, len(votes))
	seenLevels := make(map[uint64]struct{}, len(votes))
	for _, vote := range votes {
		if vote.ProposerLevel <= minLevel {
			continue
		}
		if _, ok := seenLevels[vote.ProposerLevel]; ok {
			continue
		}
		seenLevels[vote.ProposerLevel] = struct{}{}
		effective = append(effective, &model.Vote{
			Proposer:      vote.Proposer,
			ProposerLevel: vote.ProposerLevel,
			VoterLevel:    voterLevel,
		})
	}
	return effective
}

// isBetter returns whether node wins the fork choice against other: the
// higher level wins, and on equal levels the smaller hash wins.
func isBetter(node *model.VoterNode, other *model.VoterNode) bool {
	if node.Level != other.Level {
		return node.Level > other.Level
	}
	return node.Hash.Less(other.Hash)
}

func (vc *voterChain) switchTo(newBest *model.VoterNode) *model.VoteDelta {
	delta := &model.VoteDelta{
		ChainID:   vc.chainID,
		BestLevel: newBest.Level,
	}

	if newBest.Parent.Equal(vc.best.Hash) {
		delta.Published = newBest.Votes
	} else {
		delta.IsReorg = true
		abandoned, adopted := vc.branchesFrom(vc.best, newBest)
		for _, node := range abandoned {
			delta.Retracted = append(delta.Retracted, node.Votes...)
		}
		for i := len(adopted) - 1; i >= 0; i-- {
			delta.Published = append(delta.Published, adopted[i].Votes...)
		}
		log.Debugf("Voter chain %d reorganized from %s (level %d) to %s (level %d), "+
			"retracting %d votes and publishing %d votes", vc.chainID, vc.best.Hash, vc.best.Level,
			newBest.Hash, newBest.Level, len(delta.Retracted), len(delta.Published))
	}

	for _, vote := range delta.Retracted {
		delete(vc.votesByLevel, vote.ProposerLevel)
	}
	for _, vote := range delta.Published {
		vc.votesByLevel[vote.ProposerLevel] = vote
	}
	vc.best = newBest
	return delta
}

// branchesFrom walks both nodes back to their fork point and returns the
// nodes above it on each side, from the tip down.
func (vc *voterChain) branchesFrom(oldTip, newTip *model.VoterNode) (abandoned, adopted []*model.VoterNode) {
	for oldTip.Level > newTip.Level {
		abandoned = append(abandoned, oldTip)
		oldTip = vc.nodes[*oldTip.Parent]
	}
	for newTip.Level > oldTip.Level {
		adopted = append(adopted, newTip)
		newTip = vc.nodes[*newTip.Parent]
	}
	for !oldTip.Hash.Equal(newTip.Hash) {
		abandoned = append(abandoned, oldTip)
		adopted = append(adopted, newTip)
		oldTip = vc.nodes[*oldTip.Parent]
		newTip = vc.nodes[*newTip.Parent]
	}
	return abandoned, adopted
}

func (vc *voterChain) emptyDelta() *model.VoteDelta {
	return &model.VoteDelta{
		ChainID:   vc.chainID,
		BestLevel: vc.best.Level,
	}
}

func (vc *voterChain) BestNode() *model.VoterNode {
	vc.lock.RLock()
	defer vc.lock.RUnlock()

	return vc.best
}

// ChainLength returns the level of the main branch's tip, which is the
// number of voter blocks mined on top of genesis
func (vc *voterChain) ChainLength() uint64 {
	vc.lock.RLock()
	defer vc.lock.RUnlock()

	return vc.best.Level
}

func (vc *voterChain) Node(blockHash *externalapi.DomainHash) (*model.VoterNode, bool) {
	vc.lock.RLock()
	defer vc.lock.RUnlock()

	node, ok := vc.nodes[*blockHash]
	return node, ok
}

// CastVote returns the main branch's vote for the given proposer level and
// how many main branch blocks, the voting block included, confirm it
func (vc *voterChain) CastVote(proposerLevel uint64) (*model.Vote, uint64, bool) {
	vc.lock.RLock()
	defer vc.lock.RUnlock()

	vote, ok := vc.votesByLevel[proposerLevel]
	if !ok {
		return nil, 0, false
	}
	return vote, vc.best.Level - vote.VoterLevel + 1, true
}
