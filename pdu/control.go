package pdu

import dicomerr "github.com/pacsops/dicomqr/errors"

// A-ABORT source values.
const (
	AbortSourceServiceUser     byte = 0x00
	AbortSourceServiceProvider byte = 0x02
)

// A-ABORT reason values (meaningful only for provider-initiated aborts).
const (
	AbortReasonNotSpecified       byte = 0x00
	AbortReasonUnrecognizedPDU    byte = 0x01
	AbortReasonUnexpectedPDU      byte = 0x02
	AbortReasonInvalidPDUParam    byte = 0x04
	AbortReasonUnrecognizedPDUVal byte = 0x05
)

// ReleaseRQ is an A-RELEASE-RQ PDU.
type ReleaseRQ struct{}

// Type implements PDU.
func (p *ReleaseRQ) Type() byte { return TypeReleaseRQ }

// Encode implements PDU.
func (p *ReleaseRQ) Encode() []byte {
	return encodeWithHeader(TypeReleaseRQ, make([]byte, 4))
}

// ReleaseRP is an A-RELEASE-RP PDU.
type ReleaseRP struct{}

// Type implements PDU.
func (p *ReleaseRP) Type() byte { return TypeReleaseRP }

// Encode implements PDU.
func (p *ReleaseRP) Encode() []byte {
	return encodeWithHeader(TypeReleaseRP, make([]byte, 4))
}

// Abort is an A-ABORT PDU.
type Abort struct {
	Source byte
	Reason byte
}

// Type implements PDU.
func (p *Abort) Type() byte { return TypeAbort }

// Encode implements PDU.
func (p *Abort) Encode() []byte {
	return encodeWithHeader(TypeAbort, []byte{0x00, 0x00, p.Source, p.Reason})
}

func decodeRelease(body []byte, response bool) (PDU, error) {
	pduType := byte(TypeReleaseRQ)
	if response {
		pduType = TypeReleaseRP
	}
	if len(body) != 4 {
		return nil, dicomerr.NewMalformedPDU(pduType, "body must be 4 bytes")
	}
	if response {
		return &ReleaseRP{}, nil
	}
	return &ReleaseRQ{}, nil
}

func decodeAbort(body []byte) (PDU, error) {
	if len(body) != 4 {
		return nil, dicomerr.NewMalformedPDU(TypeAbort, "body must be 4 bytes")
	}
	return &Abort{Source: body[2], Reason: body[3]}, nil
}
