package types

// DIMSE command field values (PS3.7, Section 9.3).
const (
	CStoreRQ  = 0x0001
	CStoreRSP = 0x8001
	CGetRQ    = 0x0010
	CGetRSP   = 0x8010
	CFindRQ   = 0x0020
	CFindRSP  = 0x8020
	CMoveRQ   = 0x0021
	CMoveRSP  = 0x8021
	CEchoRQ   = 0x0030
	CEchoRSP  = 0x8030
	CCancelRQ = 0x0FFF
)

// Well-known DIMSE status codes.
const (
	StatusSuccess                = 0x0000
	StatusCancel                 = 0xFE00
	StatusPending                = 0xFF00
	StatusPendingWarning         = 0xFF01
	StatusMoveDestinationUnknown = 0xA801
	StatusOutOfResources         = 0xA700
	StatusUnableToProcess        = 0xC000
)

// CommandDataSetType values for the (0000,0800) command element.
const (
	DataSetPresent = 0x0000
	NoDataSet      = 0x0101
)

// StatusClass partitions DIMSE status codes into the groups the request
// flows act on.
type StatusClass int

const (
	StatusClassSuccess StatusClass = iota
	StatusClassPending
	StatusClassCancel
	StatusClassWarning
	StatusClassFailure
)

// ClassifyStatus maps a raw status code onto its class. Codes outside the
// recognized ranges classify as failure; callers keep the raw code for
// diagnostics.
func ClassifyStatus(status uint16) StatusClass {
	switch {
	case status == StatusSuccess:
		return StatusClassSuccess
	case status == StatusPending || status == StatusPendingWarning:
		return StatusClassPending
	case status == StatusCancel:
		return StatusClassCancel
	case status&0xFF00 == 0x0100 || status&0xF000 == 0xB000:
		return StatusClassWarning
	default:
		return StatusClassFailure
	}
}

// Message is a decoded DIMSE command set. Zero-valued optional fields are
// omitted on encode; the sub-operation counters use pointers because zero is
// a meaningful progress value.
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	RequestedSOPClassUID      string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	MoveDestination           string
	MoveOriginatorAET         string
	MoveOriginatorMessageID   uint16

	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// HasDataSet reports whether the command declares an accompanying data set.
func (m *Message) HasDataSet() bool {
	return m.CommandDataSetType != NoDataSet
}

// ResponseCommandFor maps a DIMSE request command to its response command.
func ResponseCommandFor(request uint16) uint16 {
	return request | 0x8000
}
