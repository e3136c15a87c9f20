package dicom

import (
	"bytes"
	"fmt"
	"io"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// File meta information tags (PS3.10, Table 7.1-1).
var (
	tagFileMetaGroupLength        = Tag{0x0002, 0x0000}
	tagFileMetaVersion            = Tag{0x0002, 0x0001}
	tagMediaStorageSOPClassUID    = Tag{0x0002, 0x0002}
	tagMediaStorageSOPInstanceUID = Tag{0x0002, 0x0003}
	tagTransferSyntaxUID          = Tag{0x0002, 0x0010}
	tagImplementationClassUID     = Tag{0x0002, 0x0012}
	tagImplementationVersionName  = Tag{0x0002, 0x0013}
)

const preambleLen = 128

var dicmMagic = []byte("DICM")

// WritePart10 writes the dataset as a PS3.10 file: 128-byte preamble, DICM
// magic, explicit VR little endian file meta group, then the dataset encoded
// under transferSyntax. The SOP class and instance UIDs for the meta group
// are read from the dataset itself.
func WritePart10(w io.Writer, ds *Dataset, transferSyntax string) error {
	sopClass := ds.GetString(TagSOPClassUID)
	if sopClass == "" {
		return dicomerr.NewMalformedElement(TagSOPClassUID.Group, TagSOPClassUID.Element,
			"dataset has no SOP class UID")
	}
	sopInstance := ds.GetString(TagSOPInstanceUID)
	if sopInstance == "" {
		return dicomerr.NewMalformedElement(TagSOPInstanceUID.Group, TagSOPInstanceUID.Element,
			"dataset has no SOP instance UID")
	}
	if transferSyntax == "" {
		transferSyntax = types.ExplicitVRLittleEndian
	}

	meta := NewDataset()
	meta.Add(tagFileMetaVersion, VROtherByte, []byte{0x00, 0x01})
	meta.Add(tagMediaStorageSOPClassUID, VRUniqueIdentifier, sopClass)
	meta.Add(tagMediaStorageSOPInstanceUID, VRUniqueIdentifier, sopInstance)
	meta.Add(tagTransferSyntaxUID, VRUniqueIdentifier, transferSyntax)
	meta.Add(tagImplementationClassUID, VRUniqueIdentifier, types.ImplementationClassUID)
	meta.Add(tagImplementationVersionName, VRShortString, types.ImplementationVersionName)

	// The file meta group is always explicit VR little endian, preceded by
	// its group length element.
	metaBytes, err := Encode(meta, types.ExplicitVRLittleEndian)
	if err != nil {
		return err
	}
	lengthDs := NewDataset()
	lengthDs.Add(tagFileMetaGroupLength, VRUnsignedLong, uint32(len(metaBytes)))
	lengthBytes, err := Encode(lengthDs, types.ExplicitVRLittleEndian)
	if err != nil {
		return err
	}

	body, err := Encode(ds, transferSyntax)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, preambleLen))
	buf.Write(dicmMagic)
	buf.Write(lengthBytes)
	buf.Write(metaBytes)
	buf.Write(body)

	_, err = w.Write(buf.Bytes())
	return err
}

// ReadPart10 parses a PS3.10 file, returning the dataset and the transfer
// syntax the body was encoded under.
func ReadPart10(data []byte) (*Dataset, string, error) {
	if len(data) < preambleLen+4 || !bytes.Equal(data[preambleLen:preambleLen+4], dicmMagic) {
		return nil, "", dicomerr.NewMalformedElement(0, 0, "missing DICM magic")
	}
	off := preambleLen + 4

	// Group length bounds the file meta group that follows it.
	dec := &decoder{data: data[off:], sx: syntaxFor(types.ExplicitVRLittleEndian)}
	elem, err := dec.element()
	if err != nil {
		return nil, "", err
	}
	if elem.Tag != tagFileMetaGroupLength {
		return nil, "", dicomerr.NewMalformedElement(elem.Tag.Group, elem.Tag.Element,
			"expected file meta group length")
	}
	raw, ok := elem.Value.([]byte)
	if !ok || len(raw) != 4 {
		return nil, "", dicomerr.NewMalformedElement(elem.Tag.Group, elem.Tag.Element,
			"group length is not a 4-byte UL")
	}
	metaLen := int(uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24)
	off += dec.off

	if metaLen > len(data)-off {
		return nil, "", dicomerr.NewMalformedElement(tagFileMetaGroupLength.Group, tagFileMetaGroupLength.Element,
			fmt.Sprintf("meta group length %d exceeds %d remaining bytes", metaLen, len(data)-off))
	}

	meta, err := Decode(data[off:off+metaLen], types.ExplicitVRLittleEndian)
	if err != nil {
		return nil, "", err
	}
	transferSyntax := meta.GetString(tagTransferSyntaxUID)
	if transferSyntax == "" {
		return nil, "", dicomerr.NewMalformedElement(tagTransferSyntaxUID.Group, tagTransferSyntaxUID.Element,
			"file meta has no transfer syntax UID")
	}

	ds, err := Decode(data[off+metaLen:], transferSyntax)
	if err != nil {
		return nil, "", err
	}
	return ds, transferSyntax, nil
}
