package serialization

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// MaxListLength bounds every length-prefixed list read from the wire.
const MaxListLength = 1 << 16

// MaxVarBytesLength bounds every length-prefixed byte string read from the wire.
const MaxVarBytesLength = 1 << 16

// errNoEncodingForType signifies that there's no encoding for the given type.
var errNoEncodingForType = errors.New("there's no encoding for this type")

var errMalformed = errors.New("errMalformed")

// WriteElement writes the little endian representation of element to w.
func WriteElement(w io.Writer, element interface{}) error {
	var err error
	switch e := element.(type) {
	case uint8:
		_, err = w.Write([]byte{e})
	case uint16:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], e)
		_, err = w.Write(buf[:])
	case uint32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], e)
		_, err = w.Write(buf[:])
	case uint64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], e)
		_, err = w.Write(buf[:])
	case bool:
		b := uint8(0x00)
		if e {
			b = 0x01
		}
		_, err = w.Write([]byte{b})
	case *externalapi.DomainHash:
		_, err = w.Write(e.ByteSlice())
	case *externalapi.DomainTransactionID:
		_, err = w.Write((*externalapi.DomainHash)(e).ByteSlice())
	case externalapi.Address:
		_, err = w.Write(e[:])
	default:
		return errors.Wrapf(errNoEncodingForType, "couldn't find a way to write type %T", element)
	}
	return errors.WithStack(err)
}

// WriteElements writes multiple items to w. It is equivalent to multiple
// calls to writeElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func ReadElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = buf[0]
	case *uint16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = binary.LittleEndian.Uint16(buf[:])
	case *uint32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = binary.LittleEndian.Uint32(buf[:])
	case *uint64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = binary.LittleEndian.Uint64(buf[:])
	case *bool:
		var rv uint8
		if err := ReadElement(r, &rv); err != nil {
			return err
		}
		switch rv {
		case 0x00:
			*e = false
		case 0x01:
			*e = true
		default:
			return errors.Wrapf(errMalformed, "in order to keep serialization canonical, true has to"+
				" always be 0x01")
		}
	case *externalapi.DomainHash:
		var buf [externalapi.DomainHashSize]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return errors.WithStack(err)
		}
		*e = *externalapi.NewDomainHashFromByteArray(&buf)
	case *externalapi.DomainTransactionID:
		return ReadElement(r, (*externalapi.DomainHash)(e))
	case *externalapi.Address:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return errors.WithStack(err)
		}
	default:
		return errors.Wrapf(errNoEncodingForType, "couldn't find a way to read type %T", element)
	}
	return nil
}

// ReadElements reads multiple items from r. It is equivalent to multiple
// calls to ReadElement.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteVarBytes writes a u32 length followed by the bytes themselves.
func WriteVarBytes(w io.Writer, data []byte) error {
	err := WriteElement(w, uint32(len(data)))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return errors.WithStack(err)
}

// ReadVarBytes reads a byte string written by WriteVarBytes.
func ReadVarBytes(r io.Reader, fieldName string) ([]byte, error) {
	var length uint32
	err := ReadElement(r, &length)
	if err != nil {
		return nil, err
	}
	if length > MaxVarBytesLength {
		return nil, errors.Wrapf(errMalformed, "%s is %d bytes long, which is more than the max of %d",
			fieldName, length, MaxVarBytesLength)
	}
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// WriteHashes writes a u32 count followed by the hashes.
func WriteHashes(w io.Writer, hashes []*externalapi.DomainHash) error {
	err := WriteElement(w, uint32(len(hashes)))
	if err != nil {
		return err
	}
	for _, hash := range hashes {
		err := WriteElement(w, hash)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadHashes reads a hash list written by WriteHashes.
func ReadHashes(r io.Reader, fieldName string) ([]*externalapi.DomainHash, error) {
	count, err := readListLength(r, fieldName)
	if err != nil {
		return nil, err
	}
	hashes := make([]*externalapi.DomainHash, count)
	for i := range hashes {
		hash := &externalapi.DomainHash{}
		err := ReadElement(r, hash)
		if err != nil {
			return nil, err
		}
		hashes[i] = hash
	}
	return hashes, nil
}

func readListLength(r io.Reader, fieldName string) (uint32, error) {
	var count uint32
	err := ReadElement(r, &count)
	if err != nil {
		return 0, err
	}
	if count > MaxListLength {
		return 0, errors.Wrapf(errMalformed, "%s has %d elements, which is more than the max of %d",
			fieldName, count, MaxListLength)
	}
	return count, nil
}

// IsMalformedError returns whether the error indicates a malformed data source
func IsMalformedError(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, errMalformed)
}
