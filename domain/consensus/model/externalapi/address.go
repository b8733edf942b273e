package externalapi

import "encoding/hex"

// AddressSize is the size of an Address.
const AddressSize = 32

// Address is the hash of the public key that may spend an output.
type Address [AddressSize]byte

// String returns the hex form of the address. Use txauth.EncodeAddress
// for the human readable form.
func (address Address) String() string {
	return hex.EncodeToString(address[:])
}
