package externalapi

import "testing"

func TestDomainHashOrder(t *testing.T) {
	low, err := NewDomainHashFromString("00ff000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("NewDomainHashFromString: %+v", err)
	}
	high, err := NewDomainHashFromString("0100000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("NewDomainHashFromString: %+v", err)
	}
	if !low.Less(high) || high.Less(low) || low.Less(low) {
		t.Fatalf("Less doesn't follow byte order")
	}

	hashes := []*DomainHash{high, ZeroHash, low}
	SortHashes(hashes)
	if !HashesEqual(hashes, []*DomainHash{ZeroHash, low, high}) {
		t.Fatalf("SortHashes: got %v", hashes)
	}
	if !ZeroHash.IsZero() || low.IsZero() {
		t.Fatalf("IsZero returned a wrong answer")
	}
}

func TestNewDomainHashFromStringErrors(t *testing.T) {
	if _, err := NewDomainHashFromString("abcd"); err == nil {
		t.Fatalf("expected an error for a short string")
	}
	if _, err := NewDomainHashFromString("zz00000000000000000000000000000000000000000000000000000000000000"); err == nil {
		t.Fatalf("expected an error for a non-hex string")
	}
}

func TestUTXODiffAppend(t *testing.T) {
	outpointA := &DomainOutpoint{Index: 1}
	outpointB := &DomainOutpoint{Index: 2}
	entry := &UTXOEntry{Amount: 10}

	diff := &UTXODiff{
		ToAdd: []*OutpointAndUTXOEntryPair{{Outpoint: outpointA, UTXOEntry: entry}},
	}
	diff.Append(&UTXODiff{
		ToAdd:    []*OutpointAndUTXOEntryPair{{Outpoint: outpointB, UTXOEntry: entry}},
		ToRemove: []*OutpointAndUTXOEntryPair{{Outpoint: outpointA, UTXOEntry: entry}},
	})
	if len(diff.ToAdd) != 1 || *diff.ToAdd[0].Outpoint != *outpointB || len(diff.ToRemove) != 0 {
		t.Fatalf("unexpected diff: add %d remove %d", len(diff.ToAdd), len(diff.ToRemove))
	}
}

func TestCoinbaseDetection(t *testing.T) {
	coinbase := &DomainTransaction{
		Inputs: []*DomainTransactionInput{{
			PreviousOutpoint: DomainOutpoint{Index: NullOutpointIndex},
		}},
	}
	if !coinbase.IsCoinbase() || !coinbase.HasNullInput() {
		t.Fatalf("coinbase wasn't detected")
	}
	spend := &DomainTransaction{
		Inputs: []*DomainTransactionInput{{PreviousOutpoint: DomainOutpoint{Index: 0}}},
	}
	if spend.IsCoinbase() || spend.HasNullInput() {
		t.Fatalf("regular transaction detected as coinbase")
	}
	overflowing := &DomainTransaction{
		Outputs: []*DomainTransactionOutput{{Value: ^uint64(0)}, {Value: 1}},
	}
	if _, ok := overflowing.TotalOutputValue(); ok {
		t.Fatalf("TotalOutputValue didn't report an overflow")
	}
}
