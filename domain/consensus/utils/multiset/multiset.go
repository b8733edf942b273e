package multiset

import (
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// Multiset is an order independent commitment to a set of byte strings.
// Removing an element undoes adding it exactly, so the serialized form of
// a set doesn't depend on how it was reached.
type Multiset struct {
	ms *muhash.MuHash
}

// New returns an empty Multiset
func New() *Multiset {
	return &Multiset{ms: muhash.NewMuHash()}
}

// Add adds data to the set
func (m *Multiset) Add(data []byte) {
	m.ms.Add(data)
}

// Remove removes data from the set
func (m *Multiset) Remove(data []byte) {
	m.ms.Remove(data)
}

// Hash returns the commitment to the current set
func (m *Multiset) Hash() *externalapi.DomainHash {
	finalizedHash := m.ms.Finalize()
	return externalapi.NewDomainHashFromByteArray(finalizedHash.AsArray())
}

// Serialize returns the serialized set
func (m *Multiset) Serialize() []byte {
	return m.ms.Serialize()[:]
}

// Clone returns an independent copy of the set
func (m *Multiset) Clone() *Multiset {
	return &Multiset{ms: m.ms.Clone()}
}

// FromBytes deserializes the given bytes slice and returns a multiset.
func FromBytes(multisetBytes []byte) (*Multiset, error) {
	serialized := &muhash.SerializedMuHash{}
	if len(serialized) != len(multisetBytes) {
		return nil, errors.Errorf("multiset bytes expected to be in length of %d but got %d",
			len(serialized), len(multisetBytes))
	}
	copy(serialized[:], multisetBytes)
	ms, err := muhash.DeserializeMuHash(serialized)
	if err != nil {
		return nil, err
	}

	return &Multiset{ms: ms}, nil
}
