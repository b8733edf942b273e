package model

import (
	"fmt"

	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// ProposerTree aggregates the votes of every voter chain into one leader
// per proposer level
type ProposerTree interface {
	AddProposer(blockHash *externalapi.DomainHash, parentHash *externalapi.DomainHash) (level uint64, err error)
	Level(blockHash *externalapi.DomainHash) (uint64, bool)
	ApplyVoteDelta(delta *VoteDelta) error
	Evaluate() (decisions []*LevelDecision, violations []error)
	LevelInfo(level uint64) (*LevelInfo, bool)
	DecidedPrefix() (leaders []*externalapi.DomainHash, finalizedCount uint64)
	MaxLevel() uint64
}

// LevelStatus is the leader election state of a proposer level
type LevelStatus byte

const (
	// LevelStatusEmpty means no proposer block was seen at the level
	LevelStatusEmpty LevelStatus = iota

	// LevelStatusPending means the level has proposer blocks but not
	// enough votes to elect a leader
	LevelStatusPending

	// LevelStatusDecided means the level has a leader
	LevelStatusDecided
)

var levelStatusStrings = map[LevelStatus]string{
	LevelStatusEmpty:   "Empty",
	LevelStatusPending: "Pending",
	LevelStatusDecided: "Decided",
}

func (status LevelStatus) String() string {
	if s, ok := levelStatusStrings[status]; ok {
		return s
	}
	return fmt.Sprintf("<unknown level status %d>", status)
}

// LevelInfo is a snapshot of one proposer level
type LevelInfo struct {
	Level     uint64
	Status    LevelStatus
	Proposers []*externalapi.DomainHash
	Leader    *externalapi.DomainHash
	Finalized bool
}

// LevelDecision reports a level that got its first leader, changed leader,
// or was finalized
type LevelDecision struct {
	Level          uint64
	Leader         *externalapi.DomainHash
	PreviousLeader *externalapi.DomainHash
	Finalized      bool
}

func (decision *LevelDecision) String() string {
	return fmt.Sprintf("level %d: leader %s (previous %v, finalized %t)",
		decision.Level, decision.Leader, decision.PreviousLeader, decision.Finalized)
}
