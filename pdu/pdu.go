// Package pdu encodes and decodes DICOM Upper Layer Protocol Data Units
// (PS3.8, Section 9.3).
//
// Every PDU starts with a 6-byte header: a 1-byte type, 1 reserved byte, and
// a 4-byte big-endian length of the body that follows. Decode failures are
// terminal for the association that produced them.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"

	dicomerr "github.com/pacsops/dicomqr/errors"
)

// PDU type bytes.
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// headerLen is the fixed PDU header size.
const headerLen = 6

// maxBodyLen caps the PDU body size accepted from the wire. Real PACS max
// PDU lengths sit in the tens of kilobytes; anything past this is a framing
// error, not a large message.
const maxBodyLen = 64 << 20

// PDU is one framed unit of the Upper Layer Protocol.
type PDU interface {
	// Type returns the PDU type byte.
	Type() byte
	// Encode serializes the PDU including its 6-byte header.
	Encode() []byte
}

// encodeWithHeader prepends the PDU header to body.
func encodeWithHeader(pduType byte, body []byte) []byte {
	out := make([]byte, headerLen+len(body))
	out[0] = pduType
	binary.BigEndian.PutUint32(out[2:6], uint32(len(body)))
	copy(out[headerLen:], body)
	return out
}

// ReadPDU reads one complete PDU from r. A clean EOF at a PDU boundary is
// reported as ErrConnectionClosed; transport errors pass through unwrapped
// so callers can still classify them.
func ReadPDU(r io.Reader) (PDU, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, dicomerr.ErrConnectionClosed
		}
		return nil, err
	}

	pduType := header[0]
	bodyLen := binary.BigEndian.Uint32(header[2:6])
	if bodyLen > maxBodyLen {
		return nil, dicomerr.NewMalformedPDU(pduType,
			fmt.Sprintf("declared length %d exceeds limit", bodyLen))
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	return decodeBody(pduType, body)
}

// Decode parses a complete PDU, header included.
func Decode(data []byte) (PDU, error) {
	if len(data) < headerLen {
		return nil, dicomerr.NewMalformedPDU(0, "shorter than PDU header")
	}

	pduType := data[0]
	bodyLen := binary.BigEndian.Uint32(data[2:6])
	if int(bodyLen) != len(data)-headerLen {
		return nil, dicomerr.NewMalformedPDU(pduType,
			fmt.Sprintf("declared length %d does not match %d available bytes",
				bodyLen, len(data)-headerLen))
	}

	return decodeBody(pduType, data[headerLen:])
}

func decodeBody(pduType byte, body []byte) (PDU, error) {
	switch pduType {
	case TypeAssociateRQ:
		return decodeAssociateRQ(body)
	case TypeAssociateAC:
		return decodeAssociateAC(body)
	case TypeAssociateRJ:
		return decodeAssociateRJ(body)
	case TypePDataTF:
		return decodePDataTF(body)
	case TypeReleaseRQ:
		return decodeRelease(body, false)
	case TypeReleaseRP:
		return decodeRelease(body, true)
	case TypeAbort:
		return decodeAbort(body)
	default:
		return nil, &dicomerr.UnsupportedPDUTypeError{PDUType: pduType}
	}
}
