package pow

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/consensushashing"
)

// CompactToTarget converts a compact representation of a whole number N to
// the 256-bit target it encodes. The representation is similar to IEEE754
// floating point numbers:
//
//	-------------------------------------------------
//	|   Exponent     |    Sign    |    Mantissa     |
//	-------------------------------------------------
//	| 8 bits [31-24] | 1 bit [23] | 23 bits [22-00] |
//	-------------------------------------------------
//
//	N = Mantissa * 256^(Exponent-3)
//
// Negative and overflowing targets are rejected.
func CompactToTarget(compact uint32) (*uint256.Int, error) {
	mantissa := uint64(compact & 0x007fffff)
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	if isNegative && mantissa != 0 {
		return nil, errors.Errorf("compact target %08x is negative", compact)
	}

	target := uint256.NewInt(mantissa)
	if exponent <= 3 {
		return target.Rsh(target, 8*(3-exponent)), nil
	}
	shift := 8 * (exponent - 3)
	if target.BitLen()+int(shift) > 256 {
		return nil, errors.Errorf("compact target %08x overflows 256 bits", compact)
	}
	return target.Lsh(target, shift), nil
}

// HashToInt interprets a hash as a big endian 256-bit number, so
// numeric order matches DomainHash.Less.
func HashToInt(hash *externalapi.DomainHash) *uint256.Int {
	return new(uint256.Int).SetBytes32(hash.ByteSlice())
}

// Sortition splits the proof of work target between the block roles.
// Slice 0 belongs to proposer blocks, slice 1 to transaction blocks and
// slice 2+i to the voter blocks of chain i. All slices have the same
// width except the last, which also takes the division remainder.
type Sortition struct {
	target    *uint256.Int
	width     *uint256.Int
	numSlices uint64
}

// NewSortition creates a Sortition for the given compact target and
// number of voter chains.
func NewSortition(compactTarget uint32, numVoterChains uint16) (*Sortition, error) {
	target, err := CompactToTarget(compactTarget)
	if err != nil {
		return nil, err
	}
	numSlices := uint64(numVoterChains) + 2
	width := new(uint256.Int).Div(target, uint256.NewInt(numSlices))
	if width.IsZero() {
		return nil, errors.Errorf("target %s is too small to split into %d slices", target.Hex(), numSlices)
	}
	return &Sortition{target: target, width: width, numSlices: numSlices}, nil
}

// Target returns the overall target. Every valid block hash is at most Target.
func (s *Sortition) Target() *uint256.Int {
	return new(uint256.Int).Set(s.target)
}

// NumSlices returns the number of sortition slices.
func (s *Sortition) NumSlices() uint64 {
	return s.numSlices
}

// ExpectedSlice returns the slice index the block's declared role maps to.
func ExpectedSlice(block *externalapi.DomainBlock) uint64 {
	switch content := block.Content.(type) {
	case *externalapi.ProposerContent:
		return 0
	case *externalapi.TransactionContent:
		return 1
	case *externalapi.VoterContent:
		return 2 + uint64(content.ChainNumber)
	}
	panic(errors.Errorf("unexpected block content %T", block.Content))
}

// SliceOf returns the slice the hash falls in, and false if the hash is
// above the target.
func (s *Sortition) SliceOf(hash *externalapi.DomainHash) (uint64, bool) {
	value := HashToInt(hash)
	if value.Gt(s.target) {
		return 0, false
	}
	slice := new(uint256.Int).Div(value, s.width)
	if !slice.IsUint64() || slice.Uint64() >= s.numSlices {
		return s.numSlices - 1, true
	}
	return slice.Uint64(), true
}

// CheckProofOfWork returns whether the block's hash falls in the slice of
// its declared role.
func (s *Sortition) CheckProofOfWork(block *externalapi.DomainBlock) bool {
	slice, ok := s.SliceOf(consensushashing.BlockHash(block))
	return ok && slice == ExpectedSlice(block)
}

// SliceRange returns the inclusive bounds of a slice.
func (s *Sortition) SliceRange(slice uint64) (low, high *uint256.Int) {
	low = new(uint256.Int).Mul(s.width, uint256.NewInt(slice))
	if slice == s.numSlices-1 {
		return low, s.Target()
	}
	high = new(uint256.Int).Add(low, s.width)
	return low, high.SubUint64(high, 1)
}
