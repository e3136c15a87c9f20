// Package errors defines the typed error kinds surfaced by the DICOM engine.
//
// Codec-level errors (malformed PDUs, elements, responses) are fatal to the
// association that produced them and trigger an abort. Service-level failures
// (a bad DIMSE status) end only the current exchange.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrConnectionClosed  = errors.New("dicom: connection closed")
	ErrNoPresentationCtx = errors.New("dicom: no accepted presentation context")
	ErrNotEstablished    = errors.New("dicom: association not established")
	ErrCanceled          = errors.New("dicom: operation canceled")
)

// ConnectionError wraps a transport-level failure. Recoverable by retrying
// with backoff; the engine leaves retry policy to the caller.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("dicom: connection failed during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnectionError wraps err as a transport failure during op.
func NewConnectionError(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}

// RejectSource identifies which entity rejected an association.
type RejectSource byte

const (
	RejectSourceServiceUser         RejectSource = 0x01
	RejectSourceServiceProviderACSE RejectSource = 0x02
	RejectSourceServiceProviderPres RejectSource = 0x03
)

func (s RejectSource) String() string {
	switch s {
	case RejectSourceServiceUser:
		return "service-user"
	case RejectSourceServiceProviderACSE:
		return "service-provider (ACSE)"
	case RejectSourceServiceProviderPres:
		return "service-provider (presentation)"
	default:
		return "unknown"
	}
}

// RejectReason carries the peer's stated reason for an A-ASSOCIATE-RJ.
type RejectReason byte

const (
	RejectReasonNoReasonGiven           RejectReason = 0x01
	RejectReasonAppContextNotSupported  RejectReason = 0x02
	RejectReasonCallingAETNotRecognized RejectReason = 0x03
	RejectReasonCalledAETNotRecognized  RejectReason = 0x07
)

func (r RejectReason) String() string {
	switch r {
	case RejectReasonNoReasonGiven:
		return "no-reason-given"
	case RejectReasonAppContextNotSupported:
		return "application-context-not-supported"
	case RejectReasonCallingAETNotRecognized:
		return "calling-ae-title-not-recognized"
	case RejectReasonCalledAETNotRecognized:
		return "called-ae-title-not-recognized"
	default:
		return "unknown"
	}
}

// AssociationRejectedError reports an A-ASSOCIATE-RJ from the peer. Result
// distinguishes permanent (1) from transient (2) rejection.
type AssociationRejectedError struct {
	Result byte
	Source RejectSource
	Reason RejectReason
}

func (e *AssociationRejectedError) Error() string {
	kind := "permanent"
	if e.Result == 2 {
		kind = "transient"
	}
	return fmt.Sprintf("dicom: association rejected (%s, source: %s, reason: %s)",
		kind, e.Source, e.Reason)
}

// TimeoutError reports that a blocking step exceeded its deadline. The
// association is aborted, never released, after a timeout.
type TimeoutError struct {
	Op    string
	After string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dicom: %s timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }

// NewTimeoutError creates a TimeoutError for op with a human-readable duration.
func NewTimeoutError(op, after string) *TimeoutError {
	return &TimeoutError{Op: op, After: after}
}

// MalformedPDUError reports a framing violation at the PDU layer. Fatal to
// the association.
type MalformedPDUError struct {
	PDUType byte
	Msg     string
}

func (e *MalformedPDUError) Error() string {
	return fmt.Sprintf("dicom: malformed PDU (type 0x%02X): %s", e.PDUType, e.Msg)
}

// NewMalformedPDU creates a MalformedPDUError.
func NewMalformedPDU(pduType byte, msg string) *MalformedPDUError {
	return &MalformedPDUError{PDUType: pduType, Msg: msg}
}

// UnsupportedPDUTypeError reports an unrecognized PDU type byte. Fatal to the
// association.
type UnsupportedPDUTypeError struct {
	PDUType byte
}

func (e *UnsupportedPDUTypeError) Error() string {
	return fmt.Sprintf("dicom: unsupported PDU type 0x%02X", e.PDUType)
}

// MalformedElementError reports an invalid data element encoding, such as a
// declared length running past the end of input.
type MalformedElementError struct {
	Group   uint16
	Element uint16
	Msg     string
}

func (e *MalformedElementError) Error() string {
	return fmt.Sprintf("dicom: malformed element (%04X,%04X): %s", e.Group, e.Element, e.Msg)
}

// NewMalformedElement creates a MalformedElementError for the given tag.
func NewMalformedElement(group, element uint16, msg string) *MalformedElementError {
	return &MalformedElementError{Group: group, Element: element, Msg: msg}
}

// MalformedResponseError reports a DIMSE response that violates the protocol,
// for example a command set that declares a data set which never arrives.
// Fatal to the current exchange, not the association.
type MalformedResponseError struct {
	Operation string
	Msg       string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("dicom: malformed %s response: %s", e.Operation, e.Msg)
}

// ServiceFailureError reports a terminal DIMSE status outside
// Success/Pending/Cancel. The raw status is preserved for diagnostics.
type ServiceFailureError struct {
	Operation string
	Status    uint16
}

func (e *ServiceFailureError) Error() string {
	return fmt.Sprintf("dicom: %s failed with status 0x%04X", e.Operation, e.Status)
}

// AbortError reports an A-ABORT received from the peer.
type AbortError struct {
	Source byte
	Reason byte
}

func (e *AbortError) Error() string {
	source := "service-provider"
	if e.Source == 0x00 {
		source = "service-user"
	}
	return fmt.Sprintf("dicom: association aborted by %s (reason 0x%02X)", source, e.Reason)
}

// InstanceFailure describes one failed sub-operation of a retrieve.
type InstanceFailure struct {
	SOPInstanceUID string
	Err            error
}

// PartialDownloadError reports a retrieve in which some but not all
// sub-operations failed. Completed counts instances written to disk.
type PartialDownloadError struct {
	Completed int
	Failed    []InstanceFailure
}

func (e *PartialDownloadError) Error() string {
	return fmt.Sprintf("dicom: download partially failed: %d completed, %d failed",
		e.Completed, len(e.Failed))
}
