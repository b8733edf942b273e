package hashes

import (
	"crypto/sha256"
	"hash"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// HashWriter is used to incrementally hash data without concatenating all of the data to a single buffer
// it exposes an io.Writer api and a Finalize function to get the resulting hash.
// The used hash function is single SHA-256.
type HashWriter struct {
	hash.Hash
}

// NewBlockHashWriter returns a HashWriter for block header hashes.
func NewBlockHashWriter() HashWriter {
	return HashWriter{sha256.New()}
}

// NewContentHashWriter returns a HashWriter for block content commitments.
func NewContentHashWriter() HashWriter {
	return HashWriter{sha256.New()}
}

// NewTransactionIDWriter returns a HashWriter for transaction IDs.
func NewTransactionIDWriter() HashWriter {
	return HashWriter{sha256.New()}
}

// InfallibleWrite is just like write but doesn't return anything
func (h HashWriter) InfallibleWrite(p []byte) {
	// This write can never return an error, this is part of the hash.Hash interface contract.
	_, err := h.Write(p)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. hash.Hash interface promises to not return errors."))
	}
}

// Finalize returns the resulting hash
func (h HashWriter) Finalize() *externalapi.DomainHash {
	var sum [externalapi.DomainHashSize]byte
	copy(sum[:], h.Sum(nil))
	return externalapi.NewDomainHashFromByteArray(&sum)
}
