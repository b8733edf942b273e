package serialization

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// HeaderSize is the length of a serialized block header.
const HeaderSize = 2*externalapi.DomainHashSize + 4 + 4

const (
	contentTagProposer    uint8 = 0
	contentTagTransaction uint8 = 1
	contentTagVoter       uint8 = 2
)

// SerializeHeader writes the fixed 72-byte header layout to w.
func SerializeHeader(w io.Writer, header *externalapi.BlockHeader) error {
	return WriteElements(w, header.ParentHash, header.ContentHash, header.Difficulty, header.Nonce)
}

// HeaderToBytes returns the serialized header.
func HeaderToBytes(header *externalapi.BlockHeader) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	err := SerializeHeader(buf, header)
	if err != nil {
		// Writing to a bytes.Buffer never fails
		panic(err)
	}
	return buf.Bytes()
}

// DeserializeHeader reads a header written by SerializeHeader.
func DeserializeHeader(r io.Reader) (*externalapi.BlockHeader, error) {
	parentHash := &externalapi.DomainHash{}
	contentHash := &externalapi.DomainHash{}
	header := &externalapi.BlockHeader{ParentHash: parentHash, ContentHash: contentHash}
	err := ReadElements(r, parentHash, contentHash, &header.Difficulty, &header.Nonce)
	if err != nil {
		return nil, err
	}
	return header, nil
}

// SerializeContent writes the tagged content encoding to w.
func SerializeContent(w io.Writer, content externalapi.BlockContent) error {
	switch content := content.(type) {
	case *externalapi.ProposerContent:
		err := WriteElement(w, contentTagProposer)
		if err != nil {
			return err
		}
		err = WriteHashes(w, content.TransactionRefs)
		if err != nil {
			return err
		}
		return WriteHashes(w, content.ProposerRefs)

	case *externalapi.TransactionContent:
		err := WriteElement(w, contentTagTransaction)
		if err != nil {
			return err
		}
		err = WriteElement(w, uint32(len(content.Transactions)))
		if err != nil {
			return err
		}
		for _, tx := range content.Transactions {
			err := SerializeTransaction(w, tx, true)
			if err != nil {
				return err
			}
		}
		return nil

	case *externalapi.VoterContent:
		err := WriteElements(w, contentTagVoter, content.ChainNumber, content.VoterParent)
		if err != nil {
			return err
		}
		return WriteHashes(w, content.Votes)
	}
	return errors.Wrapf(errNoEncodingForType, "couldn't find a way to write content %T", content)
}

// ContentToBytes returns the serialized content.
func ContentToBytes(content externalapi.BlockContent) []byte {
	buf := &bytes.Buffer{}
	err := SerializeContent(buf, content)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// DeserializeContent reads content written by SerializeContent.
func DeserializeContent(r io.Reader) (externalapi.BlockContent, error) {
	var tag uint8
	err := ReadElement(r, &tag)
	if err != nil {
		return nil, err
	}

	switch tag {
	case contentTagProposer:
		transactionRefs, err := ReadHashes(r, "transaction refs")
		if err != nil {
			return nil, err
		}
		proposerRefs, err := ReadHashes(r, "proposer refs")
		if err != nil {
			return nil, err
		}
		return &externalapi.ProposerContent{TransactionRefs: transactionRefs, ProposerRefs: proposerRefs}, nil

	case contentTagTransaction:
		count, err := readListLength(r, "transactions")
		if err != nil {
			return nil, err
		}
		transactions := make([]*externalapi.DomainTransaction, count)
		for i := range transactions {
			transactions[i], err = DeserializeTransaction(r)
			if err != nil {
				return nil, err
			}
		}
		return &externalapi.TransactionContent{Transactions: transactions}, nil

	case contentTagVoter:
		content := &externalapi.VoterContent{VoterParent: &externalapi.DomainHash{}}
		err := ReadElements(r, &content.ChainNumber, content.VoterParent)
		if err != nil {
			return nil, err
		}
		content.Votes, err = ReadHashes(r, "votes")
		if err != nil {
			return nil, err
		}
		return content, nil
	}
	return nil, errors.Wrapf(errMalformed, "unknown content tag %d", tag)
}

// SerializeBlock writes the header followed by the content.
func SerializeBlock(w io.Writer, block *externalapi.DomainBlock) error {
	err := SerializeHeader(w, block.Header)
	if err != nil {
		return err
	}
	return SerializeContent(w, block.Content)
}

// BlockToBytes returns the serialized block.
func BlockToBytes(block *externalapi.DomainBlock) []byte {
	buf := &bytes.Buffer{}
	err := SerializeBlock(buf, block)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// DeserializeBlock reads a block written by SerializeBlock.
func DeserializeBlock(r io.Reader) (*externalapi.DomainBlock, error) {
	header, err := DeserializeHeader(r)
	if err != nil {
		return nil, err
	}
	content, err := DeserializeContent(r)
	if err != nil {
		return nil, err
	}
	return &externalapi.DomainBlock{Header: header, Content: content}, nil
}

// BlockFromBytes deserializes a block and fails on trailing bytes.
func BlockFromBytes(data []byte) (*externalapi.DomainBlock, error) {
	r := bytes.NewReader(data)
	block, err := DeserializeBlock(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(errMalformed, "%d trailing bytes after block", r.Len())
	}
	return block, nil
}
