package txauth

import (
	"errors"
	"testing"

	"github.com/kaspanet/go-secp256k1"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
)

func TestAddressEncoding(t *testing.T) {
	address := AddressFromPublicKey([]byte("some public key"))
	encoded, err := EncodeAddress("prismsim", address)
	if err != nil {
		t.Fatalf("EncodeAddress: %+v", err)
	}
	decoded, err := DecodeAddress("prismsim", encoded)
	if err != nil {
		t.Fatalf("DecodeAddress: %+v", err)
	}
	if decoded != address {
		t.Fatalf("expected %s, got %s", address, decoded)
	}

	_, err = DecodeAddress("prism", encoded)
	if err == nil {
		t.Fatalf("DecodeAddress accepted the wrong prefix")
	}
	corrupted := []byte(encoded)
	corrupted[len(corrupted)-1] ^= 1
	_, err = DecodeAddress("prismsim", string(corrupted))
	if err == nil {
		t.Fatalf("DecodeAddress accepted a bad checksum")
	}
}

func TestSignAndVerify(t *testing.T) {
	key, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		t.Fatalf("GenerateSchnorrKeyPair: %+v", err)
	}
	address, err := AddressOfKey(key)
	if err != nil {
		t.Fatalf("AddressOfKey: %+v", err)
	}

	tx := &externalapi.DomainTransaction{
		Inputs: []*externalapi.DomainTransactionInput{
			{PreviousOutpoint: externalapi.DomainOutpoint{Index: 0}},
			{PreviousOutpoint: externalapi.DomainOutpoint{Index: 1}},
		},
		Outputs: []*externalapi.DomainTransactionOutput{{Value: 10}},
	}
	err = SignAllInputs(tx, key)
	if err != nil {
		t.Fatalf("SignAllInputs: %+v", err)
	}
	txID := consensushashing.TransactionID(tx)
	for i, input := range tx.Inputs {
		err := VerifyInput(txID, input, address)
		if err != nil {
			t.Fatalf("VerifyInput #%d: %+v", i, err)
		}
	}

	otherKey, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		t.Fatalf("GenerateSchnorrKeyPair: %+v", err)
	}
	otherAddress, err := AddressOfKey(otherKey)
	if err != nil {
		t.Fatalf("AddressOfKey: %+v", err)
	}
	err = VerifyInput(txID, tx.Inputs[0], otherAddress)
	if !errors.Is(err, ruleerrors.ErrInvalidAuthorization) {
		t.Fatalf("expected ErrInvalidAuthorization for a foreign address, got %v", err)
	}

	tx.Outputs[0].Value++
	err = VerifyInput(consensushashing.TransactionID(tx), tx.Inputs[0], address)
	if !errors.Is(err, ruleerrors.ErrInvalidAuthorization) {
		t.Fatalf("expected ErrInvalidAuthorization after changing the transaction, got %v", err)
	}

	tx.Inputs[1].Signature = []byte{1, 2, 3}
	err = VerifyInput(txID, tx.Inputs[1], address)
	if !errors.Is(err, ruleerrors.ErrInvalidAuthorization) {
		t.Fatalf("expected ErrInvalidAuthorization for a malformed signature, got %v", err)
	}
}
