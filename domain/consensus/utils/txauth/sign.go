package txauth

import (
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
)

// PublicKeyBytes returns the serialized Schnorr public key of key.
func PublicKeyBytes(key *secp256k1.SchnorrKeyPair) ([]byte, error) {
	publicKey, err := key.SchnorrPublicKey()
	if err != nil {
		return nil, err
	}
	serialized, err := publicKey.Serialize()
	if err != nil {
		return nil, err
	}
	return serialized[:], nil
}

// AddressOfKey returns the address owned by key.
func AddressOfKey(key *secp256k1.SchnorrKeyPair) (externalapi.Address, error) {
	publicKey, err := PublicKeyBytes(key)
	if err != nil {
		return externalapi.Address{}, err
	}
	return AddressFromPublicKey(publicKey), nil
}

// SignInput fills the public key and signature of input idx. Every input
// signs the transaction ID, which doesn't cover any authorization data.
func SignInput(tx *externalapi.DomainTransaction, idx int, key *secp256k1.SchnorrKeyPair) error {
	if idx < 0 || idx >= len(tx.Inputs) {
		return errors.Errorf("input index %d out of range", idx)
	}
	publicKey, err := PublicKeyBytes(key)
	if err != nil {
		return err
	}

	secpHash := secp256k1.Hash(*(*externalapi.DomainHash)(consensushashing.TransactionID(tx)).ByteArray())
	signature, err := key.SchnorrSign(&secpHash)
	if err != nil {
		return errors.Errorf("cannot sign tx input: %s", err)
	}

	tx.Inputs[idx].PublicKey = publicKey
	tx.Inputs[idx].Signature = signature.Serialize()[:]
	return nil
}

// SignAllInputs signs every input of tx with key.
func SignAllInputs(tx *externalapi.DomainTransaction, key *secp256k1.SchnorrKeyPair) error {
	for i := range tx.Inputs {
		err := SignInput(tx, i, key)
		if err != nil {
			return err
		}
	}
	return nil
}

// VerifyInput checks that input carries a valid signature over txID by the
// owner of address.
func VerifyInput(txID *externalapi.DomainTransactionID, input *externalapi.DomainTransactionInput,
	address externalapi.Address) error {

	if AddressFromPublicKey(input.PublicKey) != address {
		return errors.Wrapf(ruleerrors.ErrInvalidAuthorization, "public key of input spending %s "+
			"doesn't match the address it spends from", input.PreviousOutpoint)
	}
	publicKey, err := secp256k1.DeserializeSchnorrPubKey(input.PublicKey)
	if err != nil {
		return errors.Wrapf(ruleerrors.ErrInvalidAuthorization, "malformed public key in input spending %s: %s",
			input.PreviousOutpoint, err)
	}
	signature, err := secp256k1.DeserializeSchnorrSignatureFromSlice(input.Signature)
	if err != nil {
		return errors.Wrapf(ruleerrors.ErrInvalidAuthorization, "malformed signature in input spending %s: %s",
			input.PreviousOutpoint, err)
	}
	secpHash := secp256k1.Hash(*(*externalapi.DomainHash)(txID).ByteArray())
	if !publicKey.SchnorrVerify(&secpHash, signature) {
		return errors.Wrapf(ruleerrors.ErrInvalidAuthorization, "invalid signature in input spending %s",
			input.PreviousOutpoint)
	}
	return nil
}
