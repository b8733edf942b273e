package blockvalidator

import (
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
)

// ValidateBlockInContext validates the roles of the blocks the given block
// depends on. All of them must already be in the block store.
func (v *blockValidator) ValidateBlockInContext(block *externalapi.DomainBlock) error {
	parent, ok := v.blockStore.Block(block.Header.ParentHash)
	if !ok || parent.Role() != externalapi.RoleProposer {
		return errors.Wrapf(ruleerrors.ErrInvalidParent, "parent %s is not a proposer block",
			block.Header.ParentHash)
	}

	switch content := block.Content.(type) {
	case *externalapi.ProposerContent:
		err := v.checkReferencesRole(content.ProposerRefs, externalapi.RoleProposer, "proposer reference")
		if err != nil {
			return err
		}
		return v.checkReferencesRole(content.TransactionRefs, externalapi.RoleTransaction, "transaction reference")

	case *externalapi.VoterContent:
		voterParent, ok := v.blockStore.Block(content.VoterParent)
		if !ok || voterParent.Role() != externalapi.RoleVoter {
			return errors.Wrapf(ruleerrors.ErrInvalidReference, "voter parent %s is not a voter block",
				content.VoterParent)
		}
		parentChain := voterParent.Content.(*externalapi.VoterContent).ChainNumber
		if parentChain != content.ChainNumber {
			return errors.Wrapf(ruleerrors.ErrInvalidReference, "voter parent %s belongs to chain %d "+
				"instead of %d", content.VoterParent, parentChain, content.ChainNumber)
		}
		return v.checkReferencesRole(content.Votes, externalapi.RoleProposer, "vote")
	}
	return nil
}

func (v *blockValidator) checkReferencesRole(references []*externalapi.DomainHash,
	expectedRole externalapi.BlockRole, referenceName string) error {

	for _, reference := range references {
		referenced, ok := v.blockStore.Block(reference)
		if !ok {
			return errors.Wrapf(ruleerrors.ErrInvalidReference, "%s %s is not a known block",
				referenceName, reference)
		}
		if referenced.Role() != expectedRole {
			return errors.Wrapf(ruleerrors.ErrInvalidReference, "%s %s is a %s block instead of a %s block",
				referenceName, reference, referenced.Role(), expectedRole)
		}
	}
	return nil
}
