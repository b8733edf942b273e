package proposertree

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
)

type proposerLevel struct {
	proposers []*externalapi.DomainHash
	status    model.LevelStatus
	leader    *externalapi.DomainHash
	finalized bool

	// reportedPlurality is the plurality last reported as a safety
	// violation of this finalized level
	reportedPlurality *externalapi.DomainHash
}

type proposerTree struct {
	numVoterChains    uint16
	confirmationDepth uint64

	lock           sync.RWMutex
	levels         []*proposerLevel
	proposerLevels map[externalapi.DomainHash]uint64
	chainVotes     []map[uint64]*model.Vote
	chainBestLevel []uint64

	// firstUnfinalized is the lowest level that is not finalized.
	// touchedLevels are the finalized levels whose votes changed since
	// the last evaluation.
	firstUnfinalized uint64
	touchedLevels    map[uint64]struct{}
}

// New instantiates a new ProposerTree. The genesis proposer block is the
// decided and finalized leader of level 0.
func New(numVoterChains uint16, confirmationDepth uint64, genesisHash *externalapi.DomainHash) model.ProposerTree {
	chainVotes := make([]map[uint64]*model.Vote, numVoterChains)
	for i := range chainVotes {
		chainVotes[i] = make(map[uint64]*model.Vote)
	}
	genesisLevel := &proposerLevel{
		proposers: []*externalapi.DomainHash{genesisHash},
		status:    model.LevelStatusDecided,
		leader:    genesisHash,
		finalized: true,
	}
	return &proposerTree{
		numVoterChains:    numVoterChains,
		confirmationDepth: confirmationDepth,

		levels:         []*proposerLevel{genesisLevel},
		proposerLevels: map[externalapi.DomainHash]uint64{*genesisHash: 0},
		chainVotes:     chainVotes,
		chainBestLevel: make([]uint64, numVoterChains),

		firstUnfinalized: 1,
		touchedLevels:    make(map[uint64]struct{}),
	}
}

// AddProposer places a proposer block one level above its parent
func (pt *proposerTree) AddProposer(blockHash *externalapi.DomainHash, parentHash *externalapi.DomainHash) (uint64, error) {
	pt.lock.Lock()
	defer pt.lock.Unlock()

	if level, ok := pt.proposerLevels[*blockHash]; ok {
		return level, nil
	}
	parentLevel, ok := pt.proposerLevels[*parentHash]
	if !ok {
		return 0, errors.Errorf("parent %s of proposer block %s is not in the proposer tree",
			parentHash, blockHash)
	}

	level := parentLevel + 1
	for uint64(len(pt.levels)) <= level {
		pt.levels = append(pt.levels, &proposerLevel{status: model.LevelStatusEmpty})
	}
	levelData := pt.levels[level]
	levelData.proposers = append(levelData.proposers, blockHash)
	externalapi.SortHashes(levelData.proposers)
	if levelData.status == model.LevelStatusEmpty {
		levelData.status = model.LevelStatusPending
	}
	pt.proposerLevels[*blockHash] = level
	return level, nil
}

func (pt *proposerTree) Level(blockHash *externalapi.DomainHash) (uint64, bool) {
	pt.lock.RLock()
	defer pt.lock.RUnlock()

	level, ok := pt.proposerLevels[*blockHash]
	return level, ok
}

// ApplyVoteDelta replaces a voter chain's votes as one update: the
// retracted votes are removed and the published ones added before any
// evaluation can observe the chain again.
func (pt *proposerTree) ApplyVoteDelta(delta *model.VoteDelta) error {
	if delta.ChainID >= pt.numVoterChains {
		return errors.Errorf("vote delta of chain %d, but there are only %d voter chains",
			delta.ChainID, pt.numVoterChains)
	}

	pt.lock.Lock()
	defer pt.lock.Unlock()

	votes := pt.chainVotes[delta.ChainID]
	for _, vote := range delta.Retracted {
		delete(votes, vote.ProposerLevel)
		pt.touch(vote.ProposerLevel)
	}
	for _, vote := range delta.Published {
		votes[vote.ProposerLevel] = vote
		pt.touch(vote.ProposerLevel)
	}
	pt.chainBestLevel[delta.ChainID] = delta.BestLevel
	return nil
}

func (pt *proposerTree) touch(level uint64) {
	if level < pt.firstUnfinalized {
		pt.touchedLevels[level] = struct{}{}
	}
}

type tally struct {
	voters       int
	stableVoters int
	votes        map[externalapi.DomainHash]int
	stableVotes  map[externalapi.DomainHash]int
}

func (pt *proposerTree) tallyLevel(level uint64) *tally {
	t := &tally{
		votes:       make(map[externalapi.DomainHash]int),
		stableVotes: make(map[externalapi.DomainHash]int),
	}
	for chainID, votes := range pt.chainVotes {
		vote, ok := votes[level]
		if !ok {
			continue
		}
		t.voters++
		t.votes[*vote.Proposer]++
		depth := pt.chainBestLevel[chainID] - vote.VoterLevel + 1
		if depth >= pt.confirmationDepth {
			t.stableVoters++
			t.stableVotes[*vote.Proposer]++
		}
	}
	return t
}

// topTwo returns the candidate with the most votes, ties broken by the
// smaller hash, along with its count and the count of the runner-up
func topTwo(proposers []*externalapi.DomainHash, votes map[externalapi.DomainHash]int) (
	top *externalapi.DomainHash, topCount int, secondCount int) {

	// proposers is sorted, so the first of equal counts has the smaller hash
	for _, proposer := range proposers {
		count := votes[*proposer]
		switch {
		case top == nil || count > topCount:
			if top != nil {
				secondCount = topCount
			}
			top, topCount = proposer, count
		case count > secondCount:
			secondCount = count
		}
	}
	return top, topCount, secondCount
}

// Evaluate recomputes the leader of every level whose outcome can still
// change and returns the changes since the previous evaluation, along
// with the safety violations found on finalized levels.
func (pt *proposerTree) Evaluate() ([]*model.LevelDecision, []error) {
	pt.lock.Lock()
	defer pt.lock.Unlock()

	var violations []error
	for level := range pt.touchedLevels {
		err := pt.checkFinalizedLevel(level)
		if err != nil {
			violations = append(violations, err)
		}
	}
	pt.touchedLevels = make(map[uint64]struct{})

	var decisions []*model.LevelDecision
	for level := pt.firstUnfinalized; level < uint64(len(pt.levels)); level++ {
		decision := pt.evaluateLevel(level)
		if decision != nil {
			decisions = append(decisions, decision)
		}
	}
	for pt.firstUnfinalized < uint64(len(pt.levels)) && pt.levels[pt.firstUnfinalized].finalized {
		pt.firstUnfinalized++
	}
	return decisions, violations
}

func (pt *proposerTree) checkFinalizedLevel(level uint64) error {
	levelData := pt.levels[level]
	t := pt.tallyLevel(level)
	if t.voters == 0 {
		return nil
	}
	plurality, _, _ := topTwo(levelData.proposers, t.votes)
	if plurality.Equal(levelData.leader) {
		levelData.reportedPlurality = nil
		return nil
	}
	if levelData.reportedPlurality != nil && levelData.reportedPlurality.Equal(plurality) {
		return nil
	}
	levelData.reportedPlurality = plurality
	log.Criticalf("ReorgSafetyViolation: level %d was finalized with leader %s, "+
		"but %s now holds the plurality of votes", level, levelData.leader, plurality)
	return ruleerrors.NewErrReorgSafetyViolation(level, levelData.leader, plurality)
}

func (pt *proposerTree) evaluateLevel(level uint64) *model.LevelDecision {
	levelData := pt.levels[level]
	if levelData.status == model.LevelStatusEmpty {
		return nil
	}
	previousStatus := levelData.status
	previousLeader := levelData.leader

	t := pt.tallyLevel(level)
	plurality, _, _ := topTwo(levelData.proposers, t.votes)
	switch levelData.status {
	case model.LevelStatusPending:
		if 2*t.voters > int(pt.numVoterChains) {
			levelData.status = model.LevelStatusDecided
			levelData.leader = plurality
		}
	case model.LevelStatusDecided:
		if t.voters > 0 {
			levelData.leader = plurality
		}
	}

	if levelData.status == model.LevelStatusDecided && pt.levels[level-1].finalized {
		stableTop, stableTopCount, stableSecondCount := topTwo(levelData.proposers, t.stableVotes)
		withoutStableVote := int(pt.numVoterChains) - t.stableVoters
		if stableTopCount > stableSecondCount+withoutStableVote {
			levelData.leader = stableTop
			levelData.finalized = true
		}
	}

	if levelData.status == previousStatus && levelData.leader.Equal(previousLeader) && !levelData.finalized {
		return nil
	}
	decision := &model.LevelDecision{
		Level:          level,
		Leader:         levelData.leader,
		PreviousLeader: previousLeader,
		Finalized:      levelData.finalized,
	}
	if levelData.finalized {
		log.Infof("Level %d finalized with leader %s", level, levelData.leader)
	} else {
		log.Infof("Level %d decided with leader %s", level, levelData.leader)
	}
	return decision
}

func (pt *proposerTree) LevelInfo(level uint64) (*model.LevelInfo, bool) {
	pt.lock.RLock()
	defer pt.lock.RUnlock()

	if level >= uint64(len(pt.levels)) {
		return nil, false
	}
	levelData := pt.levels[level]
	return &model.LevelInfo{
		Level:     level,
		Status:    levelData.status,
		Proposers: externalapi.CloneHashes(levelData.proposers),
		Leader:    levelData.leader,
		Finalized: levelData.finalized,
	}, true
}

// DecidedPrefix returns the leaders of the contiguous decided levels
// starting at level 0, indexed by level, and how many of those levels
// are finalized
func (pt *proposerTree) DecidedPrefix() ([]*externalapi.DomainHash, uint64) {
	pt.lock.RLock()
	defer pt.lock.RUnlock()

	leaders := make([]*externalapi.DomainHash, 0, len(pt.levels))
	for _, levelData := range pt.levels {
		if levelData.status != model.LevelStatusDecided {
			break
		}
		leaders = append(leaders, levelData.leader)
	}
	return leaders, pt.firstUnfinalized
}

func (pt *proposerTree) MaxLevel() uint64 {
	pt.lock.RLock()
	defer pt.lock.RUnlock()

	return uint64(len(pt.levels)) - 1
}
