package serialization

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

func hashOf(b byte) *externalapi.DomainHash {
	return externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{b})
}

func TestHeaderLayout(t *testing.T) {
	header := &externalapi.BlockHeader{
		ParentHash:  hashOf(1),
		ContentHash: hashOf(2),
		Difficulty:  0x2100ffff,
		Nonce:       0x01020304,
	}
	serialized := HeaderToBytes(header)
	if len(serialized) != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, len(serialized))
	}
	if serialized[0] != 1 || serialized[32] != 2 {
		t.Fatalf("hashes are not at their fixed offsets")
	}
	expectedTail := []byte{0xff, 0xff, 0x00, 0x21, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(serialized[64:], expectedTail) {
		t.Fatalf("difficulty and nonce are not little endian: %x", serialized[64:])
	}

	deserialized, err := DeserializeHeader(bytes.NewReader(serialized))
	if err != nil {
		t.Fatalf("DeserializeHeader: %+v", err)
	}
	if !reflect.DeepEqual(header, deserialized) {
		t.Fatalf("header mismatch:\n%s\n%s", spew.Sdump(header), spew.Sdump(deserialized))
	}
}

func TestBlockEncoding(t *testing.T) {
	header := &externalapi.BlockHeader{ParentHash: hashOf(1), ContentHash: hashOf(2)}
	coinbase := &externalapi.DomainTransaction{
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: externalapi.DomainOutpoint{Index: externalapi.NullOutpointIndex},
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{Value: 50, Address: externalapi.Address{7}}},
		Payload: []byte("coinbase"),
	}
	spend := &externalapi.DomainTransaction{
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: externalapi.DomainOutpoint{TransactionID: externalapi.DomainTransactionID(*hashOf(9)), Index: 1},
			PublicKey:        []byte{1, 2, 3},
			Signature:        []byte{4, 5},
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{Value: 10, Address: externalapi.Address{8}}},
	}

	blocks := []*externalapi.DomainBlock{
		{Header: header, Content: &externalapi.ProposerContent{
			TransactionRefs: []*externalapi.DomainHash{hashOf(3), hashOf(4)},
			ProposerRefs:    []*externalapi.DomainHash{hashOf(5)},
		}},
		{Header: header, Content: &externalapi.TransactionContent{
			Transactions: []*externalapi.DomainTransaction{coinbase, spend},
		}},
		{Header: header, Content: &externalapi.VoterContent{
			ChainNumber: 2,
			VoterParent: hashOf(6),
			Votes:       []*externalapi.DomainHash{hashOf(1)},
		}},
	}

	for _, block := range blocks {
		serialized := BlockToBytes(block)
		if serialized[HeaderSize] != uint8(block.Role()) {
			t.Fatalf("%s block: unexpected content tag %d", block.Role(), serialized[HeaderSize])
		}
		deserialized, err := BlockFromBytes(serialized)
		if err != nil {
			t.Fatalf("%s block: BlockFromBytes: %+v", block.Role(), err)
		}
		if !bytes.Equal(BlockToBytes(deserialized), serialized) {
			t.Fatalf("%s block: re-serialization differs:\n%s", block.Role(), spew.Sdump(deserialized))
		}
	}
}

func TestSerializeTransactionWithoutAuthorization(t *testing.T) {
	tx := &externalapi.DomainTransaction{
		Inputs: []*externalapi.DomainTransactionInput{{
			PublicKey: []byte{1, 2, 3},
			Signature: []byte{4, 5, 6},
		}},
	}
	withAuthorization := &bytes.Buffer{}
	withoutAuthorization := &bytes.Buffer{}
	if err := SerializeTransaction(withAuthorization, tx, true); err != nil {
		t.Fatalf("SerializeTransaction: %+v", err)
	}
	if err := SerializeTransaction(withoutAuthorization, tx, false); err != nil {
		t.Fatalf("SerializeTransaction: %+v", err)
	}
	// two length prefixes plus six bytes of authorization data
	if withAuthorization.Len()-withoutAuthorization.Len() != 4+3+4+3 {
		t.Fatalf("unexpected size difference %d", withAuthorization.Len()-withoutAuthorization.Len())
	}
}

func TestMalformed(t *testing.T) {
	block := &externalapi.DomainBlock{
		Header:  &externalapi.BlockHeader{ParentHash: hashOf(1), ContentHash: hashOf(2)},
		Content: &externalapi.ProposerContent{ProposerRefs: []*externalapi.DomainHash{hashOf(3)}},
	}
	serialized := BlockToBytes(block)

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", serialized[:HeaderSize-1]},
		{"truncated content", serialized[:len(serialized)-1]},
		{"trailing bytes", append(append([]byte{}, serialized...), 0)},
		{"unknown tag", append(append([]byte{}, serialized[:HeaderSize]...), 7)},
		{"huge list", append(append([]byte{}, serialized[:HeaderSize]...), 0, 0xff, 0xff, 0xff, 0xff)},
	}
	for _, test := range tests {
		_, err := BlockFromBytes(test.data)
		if !IsMalformedError(err) {
			t.Errorf("%s: expected a malformed error, got %v", test.name, err)
		}
	}
}

func TestOutpointBytes(t *testing.T) {
	outpoint := externalapi.NewDomainOutpoint((*externalapi.DomainTransactionID)(hashOf(4)), 3)
	serialized := OutpointToBytes(outpoint)
	if len(serialized) != 36 {
		t.Fatalf("expected 36 bytes, got %d", len(serialized))
	}
	deserialized, err := OutpointFromBytes(serialized)
	if err != nil {
		t.Fatalf("OutpointFromBytes: %+v", err)
	}
	if *deserialized != *outpoint {
		t.Fatalf("expected %s, got %s", outpoint, deserialized)
	}
}
