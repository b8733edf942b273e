package hashset

import (
	"strings"

	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// HashSet is an unordered set of hashes.
type HashSet map[externalapi.DomainHash]struct{}

// New returns an empty HashSet.
func New() HashSet {
	return HashSet{}
}

// NewFromSlice returns a HashSet holding the given hashes.
func NewFromSlice(hashes ...*externalapi.DomainHash) HashSet {
	set := New()

	for _, hash := range hashes {
		set.Add(hash)
	}

	return set
}

func (hs HashSet) String() string {
	hashStrings := make([]string, 0, len(hs))
	for _, hash := range hs.ToSortedSlice() {
		hashStrings = append(hashStrings, hash.String())
	}
	return strings.Join(hashStrings, ", ")
}

// Add adds hash to the set.
func (hs HashSet) Add(hash *externalapi.DomainHash) {
	hs[*hash] = struct{}{}
}

// Remove removes hash from the set.
func (hs HashSet) Remove(hash *externalapi.DomainHash) {
	delete(hs, *hash)
}

// Contains returns whether hash is in the set.
func (hs HashSet) Contains(hash *externalapi.DomainHash) bool {
	_, ok := hs[*hash]
	return ok
}

// Subtract returns the hashes of hs that aren't in other.
func (hs HashSet) Subtract(other HashSet) HashSet {
	diff := New()

	for hash := range hs {
		hash := hash
		if !other.Contains(&hash) {
			diff.Add(&hash)
		}
	}

	return diff
}

// ContainsAllInSlice returns whether every hash of slice is in the set.
func (hs HashSet) ContainsAllInSlice(slice []*externalapi.DomainHash) bool {
	for _, hash := range slice {
		if !hs.Contains(hash) {
			return false
		}
	}

	return true
}

// ToSortedSlice returns the hashes in ascending order.
func (hs HashSet) ToSortedSlice() []*externalapi.DomainHash {
	slice := make([]*externalapi.DomainHash, 0, len(hs))
	for hash := range hs {
		hash := hash
		slice = append(slice, &hash)
	}
	externalapi.SortHashes(slice)
	return slice
}
