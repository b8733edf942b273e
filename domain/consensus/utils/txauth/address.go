package txauth

import (
	"github.com/btcsuite/btcutil/bech32"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"golang.org/x/crypto/blake2b"
)

// AddressFromPublicKey returns the address owned by a serialized public key.
func AddressFromPublicKey(publicKey []byte) externalapi.Address {
	return blake2b.Sum256(publicKey)
}

// EncodeAddress returns the bech32 text form of address under prefix.
func EncodeAddress(prefix string, address externalapi.Address) (string, error) {
	converted, err := bech32.ConvertBits(address[:], 8, 5, true)
	if err != nil {
		return "", errors.Wrap(err, "error converting address to base32")
	}
	encoded, err := bech32.Encode(prefix, converted)
	if err != nil {
		return "", errors.Wrap(err, "error encoding address")
	}
	return encoded, nil
}

// DecodeAddress parses the bech32 text form of an address and checks its prefix.
func DecodeAddress(prefix string, encoded string) (externalapi.Address, error) {
	decodedPrefix, data, err := bech32.Decode(encoded)
	if err != nil {
		return externalapi.Address{}, errors.Wrapf(err, "decoding address %s failed", encoded)
	}
	if decodedPrefix != prefix {
		return externalapi.Address{}, errors.Errorf("address %s has prefix %s, expected %s",
			encoded, decodedPrefix, prefix)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return externalapi.Address{}, errors.Wrapf(err, "error converting address %s from base32", encoded)
	}
	if len(converted) != externalapi.AddressSize {
		return externalapi.Address{}, errors.Errorf("address %s decodes to %d bytes, expected %d",
			encoded, len(converted), externalapi.AddressSize)
	}
	var address externalapi.Address
	copy(address[:], converted)
	return address, nil
}
