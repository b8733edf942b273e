package serialization

import (
	"bytes"
	"io"

	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// SerializeTransaction writes tx to w. Public keys and signatures are
// only written when withAuthorization is set; the transaction ID is
// computed over the encoding without them.
func SerializeTransaction(w io.Writer, tx *externalapi.DomainTransaction, withAuthorization bool) error {
	err := WriteElement(w, uint32(len(tx.Inputs)))
	if err != nil {
		return err
	}
	for _, input := range tx.Inputs {
		err := writeTransactionInput(w, input, withAuthorization)
		if err != nil {
			return err
		}
	}

	err = WriteElement(w, uint32(len(tx.Outputs)))
	if err != nil {
		return err
	}
	for _, output := range tx.Outputs {
		err := WriteElements(w, output.Value, output.Address)
		if err != nil {
			return err
		}
	}

	return WriteVarBytes(w, tx.Payload)
}

func writeTransactionInput(w io.Writer, input *externalapi.DomainTransactionInput, withAuthorization bool) error {
	err := WriteOutpoint(w, &input.PreviousOutpoint)
	if err != nil {
		return err
	}
	if !withAuthorization {
		return nil
	}
	err = WriteVarBytes(w, input.PublicKey)
	if err != nil {
		return err
	}
	return WriteVarBytes(w, input.Signature)
}

// DeserializeTransaction reads a transaction written with its authorization.
func DeserializeTransaction(r io.Reader) (*externalapi.DomainTransaction, error) {
	inputCount, err := readListLength(r, "inputs")
	if err != nil {
		return nil, err
	}
	tx := &externalapi.DomainTransaction{
		Inputs: make([]*externalapi.DomainTransactionInput, inputCount),
	}
	for i := range tx.Inputs {
		input := &externalapi.DomainTransactionInput{}
		err := ReadOutpoint(r, &input.PreviousOutpoint)
		if err != nil {
			return nil, err
		}
		input.PublicKey, err = ReadVarBytes(r, "public key")
		if err != nil {
			return nil, err
		}
		input.Signature, err = ReadVarBytes(r, "signature")
		if err != nil {
			return nil, err
		}
		tx.Inputs[i] = input
	}

	outputCount, err := readListLength(r, "outputs")
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]*externalapi.DomainTransactionOutput, outputCount)
	for i := range tx.Outputs {
		output := &externalapi.DomainTransactionOutput{}
		err := ReadElements(r, &output.Value, &output.Address)
		if err != nil {
			return nil, err
		}
		tx.Outputs[i] = output
	}

	tx.Payload, err = ReadVarBytes(r, "payload")
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// WriteOutpoint writes the 36-byte outpoint encoding.
func WriteOutpoint(w io.Writer, outpoint *externalapi.DomainOutpoint) error {
	return WriteElements(w, &outpoint.TransactionID, outpoint.Index)
}

// ReadOutpoint reads an outpoint written by WriteOutpoint.
func ReadOutpoint(r io.Reader, outpoint *externalapi.DomainOutpoint) error {
	return ReadElements(r, &outpoint.TransactionID, &outpoint.Index)
}

// OutpointToBytes returns the serialized outpoint, used as a database key suffix.
func OutpointToBytes(outpoint *externalapi.DomainOutpoint) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, externalapi.DomainHashSize+4))
	err := WriteOutpoint(buf, outpoint)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// OutpointFromBytes deserializes an outpoint serialized by OutpointToBytes.
func OutpointFromBytes(data []byte) (*externalapi.DomainOutpoint, error) {
	outpoint := &externalapi.DomainOutpoint{}
	err := ReadOutpoint(bytes.NewReader(data), outpoint)
	if err != nil {
		return nil, err
	}
	return outpoint, nil
}
