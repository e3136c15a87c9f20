package pdu

import (
	"encoding/binary"
	"fmt"

	dicomerr "github.com/pacsops/dicomqr/errors"
)

// Message control header bits of a Presentation Data Value.
const (
	ctrlCommand      byte = 0x01
	ctrlLastFragment byte = 0x02
)

// PresentationDataValue is one fragment of a DIMSE command or data set,
// tagged with its presentation context.
type PresentationDataValue struct {
	ContextID byte
	Command   bool
	Last      bool
	Data      []byte
}

// controlHeader packs the command/last flags into the wire byte.
func (v PresentationDataValue) controlHeader() byte {
	var h byte
	if v.Command {
		h |= ctrlCommand
	}
	if v.Last {
		h |= ctrlLastFragment
	}
	return h
}

// PDataTF is a P-DATA-TF PDU carrying one or more Presentation Data Values.
type PDataTF struct {
	Values []PresentationDataValue
}

// Type implements PDU.
func (p *PDataTF) Type() byte { return TypePDataTF }

// Encode implements PDU.
func (p *PDataTF) Encode() []byte {
	var body []byte
	for _, v := range p.Values {
		pdvLen := make([]byte, 4)
		binary.BigEndian.PutUint32(pdvLen, uint32(len(v.Data)+2))
		body = append(body, pdvLen...)
		body = append(body, v.ContextID, v.controlHeader())
		body = append(body, v.Data...)
	}
	return encodeWithHeader(TypePDataTF, body)
}

func decodePDataTF(body []byte) (PDU, error) {
	p := &PDataTF{}

	offset := 0
	for offset < len(body) {
		if offset+6 > len(body) {
			return nil, dicomerr.NewMalformedPDU(TypePDataTF, "truncated PDV header")
		}

		pdvLen := binary.BigEndian.Uint32(body[offset : offset+4])
		if pdvLen < 2 {
			return nil, dicomerr.NewMalformedPDU(TypePDataTF, "PDV shorter than its header")
		}
		end := offset + 4 + int(pdvLen)
		if end > len(body) {
			return nil, dicomerr.NewMalformedPDU(TypePDataTF,
				fmt.Sprintf("PDV length %d exceeds PDU body", pdvLen))
		}

		ctrl := body[offset+5]
		data := make([]byte, pdvLen-2)
		copy(data, body[offset+6:end])

		p.Values = append(p.Values, PresentationDataValue{
			ContextID: body[offset+4],
			Command:   ctrl&ctrlCommand != 0,
			Last:      ctrl&ctrlLastFragment != 0,
			Data:      data,
		})
		offset = end
	}

	if len(p.Values) == 0 {
		return nil, dicomerr.NewMalformedPDU(TypePDataTF, "no presentation data values")
	}
	return p, nil
}

// Fragment splits data into PDVs no larger than maxPDULength allows, each
// wrapped in its own P-DATA-TF. Fragment boundaries carry no meaning to the
// layers above; only the final fragment has the last bit set.
func Fragment(contextID byte, command bool, data []byte, maxPDULength uint32) []*PDataTF {
	// Room for the PDV inside one PDU: max length minus PDV length field
	// and PDV header.
	maxChunk := int(maxPDULength) - 6
	if maxChunk < 1 {
		maxChunk = 1
	}

	var pdus []*PDataTF
	offset := 0
	for {
		chunk := len(data) - offset
		last := true
		if chunk > maxChunk {
			chunk = maxChunk
			last = false
		}

		pdus = append(pdus, &PDataTF{Values: []PresentationDataValue{{
			ContextID: contextID,
			Command:   command,
			Last:      last,
			Data:      data[offset : offset+chunk],
		}}})

		offset += chunk
		if offset >= len(data) {
			break
		}
	}
	return pdus
}
