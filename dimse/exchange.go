package dimse

import (
	"errors"
	"fmt"
	"log/slog"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/pdu"
	"github.com/pacsops/dicomqr/types"
)

// ErrReleaseRequested reports that the peer sent A-RELEASE-RQ where a DIMSE
// message was expected. Association owners respond with A-RELEASE-RP and
// close.
var ErrReleaseRequested = errors.New("dimse: peer requested association release")

// Transport moves whole PDUs. The client association and the listener both
// satisfy it.
type Transport interface {
	WritePDU(p pdu.PDU) error
	ReadPDU() (pdu.PDU, error)
}

// Exchange fragments outbound messages and reassembles inbound ones on a
// single association. Not safe for concurrent use; an association runs one
// exchange at a time.
type Exchange struct {
	transport    Transport
	maxPDULength uint32
	logger       *slog.Logger
}

// NewExchange wraps a transport. maxPDULength is the peer's advertised
// maximum from association negotiation.
func NewExchange(transport Transport, maxPDULength uint32, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchange{
		transport:    transport,
		maxPDULength: maxPDULength,
		logger:       logger,
	}
}

// Send writes one DIMSE message: the command set, then the data set when one
// is attached, both fragmented to the peer's maximum PDU length.
func (e *Exchange) Send(contextID byte, msg *types.Message, dataset []byte) error {
	e.logger.Debug("sending DIMSE message",
		"command_field", fmt.Sprintf("0x%04X", msg.CommandField),
		"message_id", msg.MessageID,
		"context_id", contextID,
		"dataset_bytes", len(dataset))

	command := EncodeCommand(msg)
	for _, p := range pdu.Fragment(contextID, true, command, e.maxPDULength) {
		if err := e.transport.WritePDU(p); err != nil {
			return err
		}
	}

	if !msg.HasDataSet() {
		return nil
	}
	for _, p := range pdu.Fragment(contextID, false, dataset, e.maxPDULength) {
		if err := e.transport.WritePDU(p); err != nil {
			return err
		}
	}
	return nil
}

// Receive reads PDUs until one complete DIMSE message is assembled. It
// returns the presentation context the message arrived on, the decoded
// command set, and the data set bytes when the command declared one.
//
// A-ABORT surfaces as AbortError, A-RELEASE-RQ as ErrReleaseRequested.
func (e *Exchange) Receive() (byte, *types.Message, []byte, error) {
	var (
		contextID  byte
		haveCtx    bool
		command    []byte
		dataset    []byte
		msg        *types.Message
		commandEnd bool
	)

	for {
		p, err := e.transport.ReadPDU()
		if err != nil {
			return 0, nil, nil, err
		}

		switch p := p.(type) {
		case *pdu.PDataTF:
			for _, pdv := range p.Values {
				if !haveCtx {
					contextID = pdv.ContextID
					haveCtx = true
				} else if pdv.ContextID != contextID {
					return 0, nil, nil, &dicomerr.MalformedResponseError{
						Operation: "receive",
						Msg: fmt.Sprintf("presentation context changed mid-message: %d then %d",
							contextID, pdv.ContextID),
					}
				}

				if pdv.Command {
					if commandEnd {
						return 0, nil, nil, &dicomerr.MalformedResponseError{
							Operation: "receive",
							Msg:       "command fragment after command set completed",
						}
					}
					command = append(command, pdv.Data...)
					if !pdv.Last {
						continue
					}
					commandEnd = true
					msg, err = DecodeCommand(command)
					if err != nil {
						return 0, nil, nil, err
					}
					e.logger.Debug("received DIMSE command",
						"command_field", fmt.Sprintf("0x%04X", msg.CommandField),
						"status", fmt.Sprintf("0x%04X", msg.Status),
						"context_id", contextID)
					if !msg.HasDataSet() {
						return contextID, msg, nil, nil
					}
					continue
				}

				if !commandEnd {
					return 0, nil, nil, &dicomerr.MalformedResponseError{
						Operation: "receive",
						Msg:       "data set fragment before command set completed",
					}
				}
				dataset = append(dataset, pdv.Data...)
				if pdv.Last {
					return contextID, msg, dataset, nil
				}
			}

		case *pdu.Abort:
			return 0, nil, nil, &dicomerr.AbortError{Source: p.Source, Reason: p.Reason}

		case *pdu.ReleaseRQ:
			return 0, nil, nil, ErrReleaseRequested

		default:
			return 0, nil, nil, &dicomerr.MalformedResponseError{
				Operation: "receive",
				Msg:       fmt.Sprintf("unexpected PDU type 0x%02X during data transfer", p.Type()),
			}
		}
	}
}
