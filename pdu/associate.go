package pdu

import (
	"encoding/binary"
	"fmt"
	"strings"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// Variable item type bytes used inside associate PDUs.
const (
	itemApplicationContext    = 0x10
	itemPresentationContextRQ = 0x20
	itemPresentationContextAC = 0x21
	itemAbstractSyntax        = 0x30
	itemTransferSyntax        = 0x40
	itemUserInformation       = 0x50
	subItemMaxLength          = 0x51
	subItemImplementationUID  = 0x52
	subItemImplementationName = 0x55
)

// Presentation context negotiation results (A-ASSOCIATE-AC).
const (
	ResultAcceptance           byte = 0x00
	ResultUserRejection        byte = 0x01
	ResultNoReason             byte = 0x02
	ResultAbstractSyntaxReject byte = 0x03
	ResultTransferSyntaxReject byte = 0x04
)

// fixedFieldsLen is the size of the associate PDU preamble: protocol version,
// reserved bytes, and the two AE title fields.
const fixedFieldsLen = 68

// ProposedPresentationContext is one presentation context item of an
// A-ASSOCIATE-RQ: an abstract syntax with transfer syntaxes in preference
// order.
type ProposedPresentationContext struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
}

// AcceptedPresentationContext is one presentation context item of an
// A-ASSOCIATE-AC. TransferSyntax is empty unless Result is acceptance.
type AcceptedPresentationContext struct {
	ID             byte
	Result         byte
	TransferSyntax string
}

// AssociateRQ is an A-ASSOCIATE-RQ PDU.
type AssociateRQ struct {
	ProtocolVersion      uint16
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []ProposedPresentationContext
	MaxPDULength         uint32
	ImplementationUID    string
	ImplementationName   string
}

// Type implements PDU.
func (p *AssociateRQ) Type() byte { return TypeAssociateRQ }

// Encode implements PDU.
func (p *AssociateRQ) Encode() []byte {
	body := appendFixedFields(nil, p.ProtocolVersion, p.CalledAETitle, p.CallingAETitle)
	body = appendItem(body, itemApplicationContext, []byte(p.ApplicationContext))

	for _, pc := range p.PresentationContexts {
		item := []byte{pc.ID, 0x00, 0x00, 0x00}
		item = appendItem(item, itemAbstractSyntax, []byte(pc.AbstractSyntax))
		for _, ts := range pc.TransferSyntaxes {
			item = appendItem(item, itemTransferSyntax, []byte(ts))
		}
		body = appendItem(body, itemPresentationContextRQ, item)
	}

	body = appendUserInformation(body, p.MaxPDULength, p.ImplementationUID, p.ImplementationName)
	return encodeWithHeader(TypeAssociateRQ, body)
}

// AssociateAC is an A-ASSOCIATE-AC PDU.
type AssociateAC struct {
	ProtocolVersion      uint16
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []AcceptedPresentationContext
	MaxPDULength         uint32
	ImplementationUID    string
	ImplementationName   string
}

// Type implements PDU.
func (p *AssociateAC) Type() byte { return TypeAssociateAC }

// Encode implements PDU.
func (p *AssociateAC) Encode() []byte {
	body := appendFixedFields(nil, p.ProtocolVersion, p.CalledAETitle, p.CallingAETitle)
	body = appendItem(body, itemApplicationContext, []byte(p.ApplicationContext))

	for _, pc := range p.PresentationContexts {
		item := []byte{pc.ID, 0x00, pc.Result, 0x00}
		// Accepted contexts carry exactly one transfer syntax sub-item;
		// rejected contexts carry none (PS3.8, Section 9.3.3.2).
		if pc.Result == ResultAcceptance && pc.TransferSyntax != "" {
			item = appendItem(item, itemTransferSyntax, []byte(pc.TransferSyntax))
		}
		body = appendItem(body, itemPresentationContextAC, item)
	}

	body = appendUserInformation(body, p.MaxPDULength, p.ImplementationUID, p.ImplementationName)
	return encodeWithHeader(TypeAssociateAC, body)
}

// AssociateRJ is an A-ASSOCIATE-RJ PDU.
type AssociateRJ struct {
	Result byte // 1 permanent, 2 transient
	Source byte
	Reason byte
}

// Type implements PDU.
func (p *AssociateRJ) Type() byte { return TypeAssociateRJ }

// Encode implements PDU.
func (p *AssociateRJ) Encode() []byte {
	return encodeWithHeader(TypeAssociateRJ, []byte{0x00, p.Result, p.Source, p.Reason})
}

// Rejected converts the PDU into the engine's typed rejection error.
func (p *AssociateRJ) Rejected() *dicomerr.AssociationRejectedError {
	return &dicomerr.AssociationRejectedError{
		Result: p.Result,
		Source: dicomerr.RejectSource(p.Source),
		Reason: dicomerr.RejectReason(p.Reason),
	}
}

func appendFixedFields(buf []byte, version uint16, calledAE, callingAE string) []byte {
	fixed := make([]byte, fixedFieldsLen)
	binary.BigEndian.PutUint16(fixed[0:2], version)
	copy(fixed[4:20], padAETitle(calledAE))
	copy(fixed[20:36], padAETitle(callingAE))
	return append(buf, fixed...)
}

// padAETitle space-pads an AE title to the fixed 16-byte field.
func padAETitle(aet string) []byte {
	if len(aet) > 16 {
		aet = aet[:16]
	}
	return []byte(fmt.Sprintf("%-16s", aet))
}

func trimAETitle(raw []byte) string {
	s := string(raw)
	if idx := strings.IndexByte(s, 0); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// appendItem appends a variable item: type, reserved byte, 2-byte big-endian
// length, value.
func appendItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	lenBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBytes, uint16(len(value)))
	buf = append(buf, lenBytes...)
	return append(buf, value...)
}

func appendUserInformation(buf []byte, maxPDULength uint32, implUID, implName string) []byte {
	var ui []byte

	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, maxPDULength)
	ui = appendItem(ui, subItemMaxLength, maxLen)

	if implUID != "" {
		ui = appendItem(ui, subItemImplementationUID, []byte(implUID))
	}
	if implName != "" {
		ui = appendItem(ui, subItemImplementationName, []byte(implName))
	}

	return appendItem(buf, itemUserInformation, ui)
}

// forEachItem iterates the variable items of data, calling fn with each item
// type and value. It fails when an item's declared length runs past the end.
func forEachItem(pduType byte, data []byte, fn func(itemType byte, value []byte) error) error {
	offset := 0
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLen := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(itemLen)
		if valueEnd > len(data) {
			return dicomerr.NewMalformedPDU(pduType,
				fmt.Sprintf("item 0x%02X exceeds PDU length", itemType))
		}
		if err := fn(itemType, data[valueStart:valueEnd]); err != nil {
			return err
		}
		offset = valueEnd
	}
	if offset != len(data) {
		return dicomerr.NewMalformedPDU(pduType, "trailing bytes after last item")
	}
	return nil
}

func decodeAssociateRQ(body []byte) (PDU, error) {
	if len(body) < fixedFieldsLen {
		return nil, dicomerr.NewMalformedPDU(TypeAssociateRQ, "shorter than fixed fields")
	}

	p := &AssociateRQ{
		ProtocolVersion: binary.BigEndian.Uint16(body[0:2]),
		CalledAETitle:   trimAETitle(body[4:20]),
		CallingAETitle:  trimAETitle(body[20:36]),
	}

	err := forEachItem(TypeAssociateRQ, body[fixedFieldsLen:], func(itemType byte, value []byte) error {
		switch itemType {
		case itemApplicationContext:
			p.ApplicationContext = types.TrimUID(value)
		case itemPresentationContextRQ:
			pc, err := decodeProposedContext(value)
			if err != nil {
				return err
			}
			p.PresentationContexts = append(p.PresentationContexts, pc)
		case itemUserInformation:
			return decodeUserInformation(TypeAssociateRQ, value,
				&p.MaxPDULength, &p.ImplementationUID, &p.ImplementationName)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeAssociateAC(body []byte) (PDU, error) {
	if len(body) < fixedFieldsLen {
		return nil, dicomerr.NewMalformedPDU(TypeAssociateAC, "shorter than fixed fields")
	}

	p := &AssociateAC{
		ProtocolVersion: binary.BigEndian.Uint16(body[0:2]),
		CalledAETitle:   trimAETitle(body[4:20]),
		CallingAETitle:  trimAETitle(body[20:36]),
	}

	err := forEachItem(TypeAssociateAC, body[fixedFieldsLen:], func(itemType byte, value []byte) error {
		switch itemType {
		case itemApplicationContext:
			p.ApplicationContext = types.TrimUID(value)
		case itemPresentationContextAC:
			pc, err := decodeAcceptedContext(value)
			if err != nil {
				return err
			}
			p.PresentationContexts = append(p.PresentationContexts, pc)
		case itemUserInformation:
			return decodeUserInformation(TypeAssociateAC, value,
				&p.MaxPDULength, &p.ImplementationUID, &p.ImplementationName)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeProposedContext(data []byte) (ProposedPresentationContext, error) {
	var pc ProposedPresentationContext
	if len(data) < 4 {
		return pc, dicomerr.NewMalformedPDU(TypeAssociateRQ, "presentation context item too short")
	}

	pc.ID = data[0]
	err := forEachItem(TypeAssociateRQ, data[4:], func(itemType byte, value []byte) error {
		switch itemType {
		case itemAbstractSyntax:
			pc.AbstractSyntax = types.TrimUID(value)
		case itemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, types.TrimUID(value))
		}
		return nil
	})
	if err != nil {
		return pc, err
	}
	if pc.AbstractSyntax == "" {
		return pc, dicomerr.NewMalformedPDU(TypeAssociateRQ,
			fmt.Sprintf("presentation context %d missing abstract syntax", pc.ID))
	}
	return pc, nil
}

func decodeAcceptedContext(data []byte) (AcceptedPresentationContext, error) {
	var pc AcceptedPresentationContext
	if len(data) < 4 {
		return pc, dicomerr.NewMalformedPDU(TypeAssociateAC, "presentation context item too short")
	}

	pc.ID = data[0]
	pc.Result = data[2]
	err := forEachItem(TypeAssociateAC, data[4:], func(itemType byte, value []byte) error {
		if itemType == itemTransferSyntax {
			pc.TransferSyntax = types.TrimUID(value)
		}
		return nil
	})
	return pc, err
}

func decodeUserInformation(pduType byte, data []byte, maxPDULength *uint32, implUID, implName *string) error {
	return forEachItem(pduType, data, func(itemType byte, value []byte) error {
		switch itemType {
		case subItemMaxLength:
			if len(value) != 4 {
				return dicomerr.NewMalformedPDU(pduType, "maximum length sub-item must be 4 bytes")
			}
			*maxPDULength = binary.BigEndian.Uint32(value)
		case subItemImplementationUID:
			*implUID = types.TrimUID(value)
		case subItemImplementationName:
			*implName = strings.TrimRight(string(value), "\x00 ")
		}
		return nil
	})
}

func decodeAssociateRJ(body []byte) (PDU, error) {
	if len(body) != 4 {
		return nil, dicomerr.NewMalformedPDU(TypeAssociateRJ, "body must be 4 bytes")
	}
	return &AssociateRJ{Result: body[1], Source: body[2], Reason: body[3]}, nil
}
