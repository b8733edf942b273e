package utxodatabase

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/serialization"
)

const serializedUTXOEntrySize = 8 + externalapi.AddressSize + 1

func serializeUTXOEntry(entry *externalapi.UTXOEntry) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, serializedUTXOEntrySize))
	err := serialization.WriteElements(buf, entry.Amount, entry.Address, entry.IsCoinbase)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func deserializeUTXOEntry(entryBytes []byte) (*externalapi.UTXOEntry, error) {
	if len(entryBytes) != serializedUTXOEntrySize {
		return nil, errors.Errorf("UTXO entry expected to be %d bytes long but got %d",
			serializedUTXOEntrySize, len(entryBytes))
	}
	entry := &externalapi.UTXOEntry{}
	err := serialization.ReadElements(bytes.NewReader(entryBytes), &entry.Amount, &entry.Address, &entry.IsCoinbase)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// serializeOutpointAndEntry is the multiset element of an unspent output
func serializeOutpointAndEntry(outpoint *externalapi.DomainOutpoint, entry *externalapi.UTXOEntry) []byte {
	return append(serialization.OutpointToBytes(outpoint), serializeUTXOEntry(entry)...)
}

// serializeUndo encodes the entries an applied transaction spent, in input order
func serializeUndo(spent []*externalapi.OutpointAndUTXOEntryPair) []byte {
	buf := &bytes.Buffer{}
	err := serialization.WriteElement(buf, uint32(len(spent)))
	if err != nil {
		panic(err)
	}
	for _, pair := range spent {
		err := serialization.WriteOutpoint(buf, pair.Outpoint)
		if err != nil {
			panic(err)
		}
		buf.Write(serializeUTXOEntry(pair.UTXOEntry))
	}
	return buf.Bytes()
}

func deserializeUndo(undoBytes []byte) ([]*externalapi.OutpointAndUTXOEntryPair, error) {
	r := bytes.NewReader(undoBytes)
	var count uint32
	err := serialization.ReadElement(r, &count)
	if err != nil {
		return nil, err
	}
	if uint64(count)*(36+serializedUTXOEntrySize) != uint64(r.Len()) {
		return nil, errors.Errorf("undo record of %d entries has %d bytes", count, r.Len())
	}
	spent := make([]*externalapi.OutpointAndUTXOEntryPair, count)
	for i := range spent {
		outpoint := &externalapi.DomainOutpoint{}
		err := serialization.ReadOutpoint(r, outpoint)
		if err != nil {
			return nil, err
		}
		entryBytes := make([]byte, serializedUTXOEntrySize)
		_, err = r.Read(entryBytes)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		entry, err := deserializeUTXOEntry(entryBytes)
		if err != nil {
			return nil, err
		}
		spent[i] = &externalapi.OutpointAndUTXOEntryPair{Outpoint: outpoint, UTXOEntry: entry}
	}
	return spent, nil
}
