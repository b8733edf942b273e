package blockvalidator

import (
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
	"github.com/prism-dag/prismd/domain/consensus/utils/pow"
	"github.com/prism-dag/prismd/infrastructure/logger"
)

// ValidateBlockInIsolation validates a block in isolation from its
// dependencies. The checks run in a fixed order and the first failure
// is returned.
func (v *blockValidator) ValidateBlockInIsolation(block *externalapi.DomainBlock) (*externalapi.DomainHash, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "ValidateBlockInIsolation")
	defer onEnd()

	blockHash := consensushashing.BlockHash(block)

	err := v.checkBlockIsNotDuplicate(blockHash)
	if err != nil {
		return nil, err
	}

	err = v.checkProposerIsNotEmpty(block)
	if err != nil {
		return nil, err
	}

	err = v.checkCoinbase(block)
	if err != nil {
		return nil, err
	}

	err = v.checkProofOfWork(blockHash, block)
	if err != nil {
		return nil, err
	}

	err = v.checkContentHash(block)
	if err != nil {
		return nil, err
	}

	err = v.checkChainNumber(block)
	if err != nil {
		return nil, err
	}

	return blockHash, nil
}

func (v *blockValidator) checkBlockIsNotDuplicate(blockHash *externalapi.DomainHash) error {
	if v.blockStore.Has(blockHash) {
		return errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s already exists", blockHash)
	}
	if v.orphanPool.Has(blockHash) {
		return errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s is already a known orphan", blockHash)
	}
	return nil
}

func (v *blockValidator) checkProposerIsNotEmpty(block *externalapi.DomainBlock) error {
	content, ok := block.Content.(*externalapi.ProposerContent)
	if !ok {
		return nil
	}
	if len(content.TransactionRefs) == 0 && len(content.ProposerRefs) == 0 {
		return errors.Wrapf(ruleerrors.ErrEmptyProposer, "proposer block references neither "+
			"transaction blocks nor proposer blocks")
	}
	return nil
}

func (v *blockValidator) checkCoinbase(block *externalapi.DomainBlock) error {
	content, ok := block.Content.(*externalapi.TransactionContent)
	if !ok {
		return nil
	}
	return v.coinbaseManager.ValidateCoinbase(content)
}

func (v *blockValidator) checkProofOfWork(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock) error {
	if v.skipPoW {
		return nil
	}

	if block.Header.Difficulty != v.powDifficulty {
		return errors.Wrapf(ruleerrors.ErrInvalidProofOfWork, "block difficulty of %08x is not "+
			"the expected value of %08x", block.Header.Difficulty, v.powDifficulty)
	}

	slice, ok := v.sortition.SliceOf(blockHash)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrInvalidProofOfWork, "block hash %s is higher than "+
			"the target", blockHash)
	}
	expectedSlice := pow.ExpectedSlice(block)
	if slice != expectedSlice {
		return errors.Wrapf(ruleerrors.ErrInvalidProofOfWork, "%s block hash %s falls in sortition "+
			"slice %d instead of %d", block.Role(), blockHash, slice, expectedSlice)
	}
	return nil
}

func (v *blockValidator) checkContentHash(block *externalapi.DomainBlock) error {
	calculated := consensushashing.ContentHash(block.Content)
	if !calculated.Equal(block.Header.ContentHash) {
		return errors.Wrapf(ruleerrors.ErrBadContentHash, "block content hash is %s, "+
			"but the header commits to %s", calculated, block.Header.ContentHash)
	}
	return nil
}

func (v *blockValidator) checkChainNumber(block *externalapi.DomainBlock) error {
	content, ok := block.Content.(*externalapi.VoterContent)
	if !ok {
		return nil
	}
	if content.ChainNumber >= v.numVoterChains {
		return errors.Wrapf(ruleerrors.ErrInvalidChainNumber, "voter block extends chain %d, "+
			"but there are only %d voter chains", content.ChainNumber, v.numVoterChains)
	}
	return nil
}
