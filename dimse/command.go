// Package dimse encodes DIMSE command sets and runs message exchanges over a
// PDU transport (PS3.7).
package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// Command set elements, all in group 0000 (PS3.7, Section 9.3). Command sets
// are always implicit VR little endian regardless of the negotiated transfer
// syntax.
const (
	elemGroupLength               = 0x0000
	elemAffectedSOPClassUID       = 0x0002
	elemRequestedSOPClassUID      = 0x0003
	elemCommandField              = 0x0100
	elemMessageID                 = 0x0110
	elemMessageIDBeingRespondedTo = 0x0120
	elemMoveDestination           = 0x0600
	elemPriority                  = 0x0700
	elemCommandDataSetType        = 0x0800
	elemStatus                    = 0x0900
	elemAffectedSOPInstanceUID    = 0x1000
	elemRemainingSuboperations    = 0x1020
	elemCompletedSuboperations    = 0x1021
	elemFailedSuboperations       = 0x1022
	elemWarningSuboperations      = 0x1023
	elemMoveOriginatorAET         = 0x1030
	elemMoveOriginatorMessageID   = 0x1031
)

// isResponse reports whether the command field names a response or C-CANCEL,
// which identify their peer message via (0000,0120) rather than (0000,0110).
func isResponse(commandField uint16) bool {
	return commandField&0x8000 != 0 || commandField == types.CCancelRQ
}

// carriesPriority reports whether the request command carries the (0000,0700)
// priority element.
func carriesPriority(commandField uint16) bool {
	switch commandField {
	case types.CStoreRQ, types.CFindRQ, types.CMoveRQ, types.CGetRQ:
		return true
	}
	return false
}

// EncodeCommand serializes a DIMSE command set, group length element first,
// remaining elements in ascending tag order. Zero-valued optional string
// fields are omitted.
func EncodeCommand(msg *types.Message) []byte {
	var body []byte

	body = appendCmdString(body, elemAffectedSOPClassUID, msg.AffectedSOPClassUID, 0x00)
	body = appendCmdString(body, elemRequestedSOPClassUID, msg.RequestedSOPClassUID, 0x00)
	body = appendCmdUint16(body, elemCommandField, msg.CommandField)

	if isResponse(msg.CommandField) {
		body = appendCmdUint16(body, elemMessageIDBeingRespondedTo, msg.MessageIDBeingRespondedTo)
	} else {
		body = appendCmdUint16(body, elemMessageID, msg.MessageID)
	}

	body = appendCmdString(body, elemMoveDestination, msg.MoveDestination, ' ')
	if carriesPriority(msg.CommandField) {
		body = appendCmdUint16(body, elemPriority, msg.Priority)
	}
	body = appendCmdUint16(body, elemCommandDataSetType, msg.CommandDataSetType)
	if msg.CommandField&0x8000 != 0 {
		body = appendCmdUint16(body, elemStatus, msg.Status)
	}
	body = appendCmdString(body, elemAffectedSOPInstanceUID, msg.AffectedSOPInstanceUID, 0x00)

	body = appendCmdCounter(body, elemRemainingSuboperations, msg.NumberOfRemainingSuboperations)
	body = appendCmdCounter(body, elemCompletedSuboperations, msg.NumberOfCompletedSuboperations)
	body = appendCmdCounter(body, elemFailedSuboperations, msg.NumberOfFailedSuboperations)
	body = appendCmdCounter(body, elemWarningSuboperations, msg.NumberOfWarningSuboperations)

	body = appendCmdString(body, elemMoveOriginatorAET, msg.MoveOriginatorAET, ' ')
	if msg.MoveOriginatorAET != "" {
		body = appendCmdUint16(body, elemMoveOriginatorMessageID, msg.MoveOriginatorMessageID)
	}

	out := make([]byte, 0, len(body)+12)
	out = appendCmdHeader(out, elemGroupLength, 4)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

// DecodeCommand parses a DIMSE command set. Unknown group 0000 elements are
// skipped; anything outside group 0000 is a protocol violation.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{}
	offset := 0

	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, dicomerr.NewMalformedElement(0, 0,
				fmt.Sprintf("truncated command element header at offset %d", offset))
		}
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8

		if int(length) > len(data)-offset {
			return nil, dicomerr.NewMalformedElement(group, element,
				fmt.Sprintf("declared length %d exceeds %d remaining bytes", length, len(data)-offset))
		}
		value := data[offset : offset+int(length)]
		offset += int(length)

		if group != 0x0000 {
			return nil, dicomerr.NewMalformedElement(group, element,
				"command set element outside group 0000")
		}

		switch element {
		case elemGroupLength:
			// Group length is informational; the walk is bounded by len(data).
		case elemCommandField:
			v, err := cmdUint16(group, element, value)
			if err != nil {
				return nil, err
			}
			msg.CommandField = v
		case elemMessageID:
			v, err := cmdUint16(group, element, value)
			if err != nil {
				return nil, err
			}
			msg.MessageID = v
		case elemMessageIDBeingRespondedTo:
			v, err := cmdUint16(group, element, value)
			if err != nil {
				return nil, err
			}
			msg.MessageIDBeingRespondedTo = v
		case elemPriority:
			v, err := cmdUint16(group, element, value)
			if err != nil {
				return nil, err
			}
			msg.Priority = v
		case elemCommandDataSetType:
			v, err := cmdUint16(group, element, value)
			if err != nil {
				return nil, err
			}
			msg.CommandDataSetType = v
		case elemStatus:
			v, err := cmdUint16(group, element, value)
			if err != nil {
				return nil, err
			}
			msg.Status = v
		case elemAffectedSOPClassUID:
			msg.AffectedSOPClassUID = trimCmdString(value)
		case elemRequestedSOPClassUID:
			msg.RequestedSOPClassUID = trimCmdString(value)
		case elemAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = trimCmdString(value)
		case elemMoveDestination:
			msg.MoveDestination = trimCmdString(value)
		case elemMoveOriginatorAET:
			msg.MoveOriginatorAET = trimCmdString(value)
		case elemMoveOriginatorMessageID:
			v, err := cmdUint16(group, element, value)
			if err != nil {
				return nil, err
			}
			msg.MoveOriginatorMessageID = v
		case elemRemainingSuboperations:
			if err := setCmdCounter(&msg.NumberOfRemainingSuboperations, group, element, value); err != nil {
				return nil, err
			}
		case elemCompletedSuboperations:
			if err := setCmdCounter(&msg.NumberOfCompletedSuboperations, group, element, value); err != nil {
				return nil, err
			}
		case elemFailedSuboperations:
			if err := setCmdCounter(&msg.NumberOfFailedSuboperations, group, element, value); err != nil {
				return nil, err
			}
		case elemWarningSuboperations:
			if err := setCmdCounter(&msg.NumberOfWarningSuboperations, group, element, value); err != nil {
				return nil, err
			}
		default:
			// Optional elements this engine does not act on.
		}
	}

	return msg, nil
}

func appendCmdHeader(buf []byte, element uint16, length uint32) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, 0x0000)
	buf = binary.LittleEndian.AppendUint16(buf, element)
	return binary.LittleEndian.AppendUint32(buf, length)
}

func appendCmdUint16(buf []byte, element uint16, v uint16) []byte {
	buf = appendCmdHeader(buf, element, 2)
	return binary.LittleEndian.AppendUint16(buf, v)
}

func appendCmdCounter(buf []byte, element uint16, v *uint16) []byte {
	if v == nil {
		return buf
	}
	return appendCmdUint16(buf, element, *v)
}

// appendCmdString writes a string element padded to even length. UIDs pad
// with a null byte, AE titles with a space.
func appendCmdString(buf []byte, element uint16, s string, pad byte) []byte {
	if s == "" {
		return buf
	}
	if len(s)%2 == 1 {
		s += string(pad)
	}
	buf = appendCmdHeader(buf, element, uint32(len(s)))
	return append(buf, s...)
}

func trimCmdString(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}

func cmdUint16(group, element uint16, value []byte) (uint16, error) {
	if len(value) != 2 {
		return 0, dicomerr.NewMalformedElement(group, element,
			fmt.Sprintf("expected 2-byte US value, got %d bytes", len(value)))
	}
	return binary.LittleEndian.Uint16(value), nil
}

func setCmdCounter(dst **uint16, group, element uint16, value []byte) error {
	v, err := cmdUint16(group, element, value)
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}
