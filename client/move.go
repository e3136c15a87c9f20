package client

import (
	"context"
	"fmt"

	"github.com/pacsops/dicomqr/dicom"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// SubOperations is a snapshot of the retrieve counters a C-MOVE or C-GET
// response carries.
type SubOperations struct {
	Remaining uint16
	Completed uint16
	Failed    uint16
	Warning   uint16
}

func subOperationsFrom(msg *types.Message) SubOperations {
	var s SubOperations
	if msg.NumberOfRemainingSuboperations != nil {
		s.Remaining = *msg.NumberOfRemainingSuboperations
	}
	if msg.NumberOfCompletedSuboperations != nil {
		s.Completed = *msg.NumberOfCompletedSuboperations
	}
	if msg.NumberOfFailedSuboperations != nil {
		s.Failed = *msg.NumberOfFailedSuboperations
	}
	if msg.NumberOfWarningSuboperations != nil {
		s.Warning = *msg.NumberOfWarningSuboperations
	}
	return s
}

// MoveResult summarizes a completed C-MOVE.
type MoveResult struct {
	Status        uint16
	SubOperations SubOperations
}

// Move issues a C-MOVE toward destination and consumes the response stream.
// onProgress, when non-nil, observes every pending response's counters. The
// result is returned even when the terminal status is a failure, so callers
// see how far the retrieve got.
//
// Canceling ctx sends a C-CANCEL; the peer finishes with a cancel terminal
// status and Move returns that result normally.
func (a *Association) Move(ctx context.Context, sopClassUID, destination string, identifier *dicom.Dataset, onProgress func(SubOperations)) (*MoveResult, error) {
	if err := a.requireEstablished(); err != nil {
		return nil, err
	}
	if identifier == nil {
		return nil, fmt.Errorf("move requires an identifier dataset")
	}
	if destination == "" {
		return nil, fmt.Errorf("move requires a destination AE title")
	}

	pc, err := a.ContextFor(sopClassUID)
	if err != nil {
		return nil, err
	}
	encoded, err := dicom.Encode(identifier, pc.TransferSyntax)
	if err != nil {
		return nil, err
	}

	messageID := a.nextID()
	err = a.exchange.Send(pc.ID, &types.Message{
		CommandField:        types.CMoveRQ,
		MessageID:           messageID,
		AffectedSOPClassUID: sopClassUID,
		CommandDataSetType:  types.DataSetPresent,
		MoveDestination:     destination,
	}, encoded)
	if err != nil {
		return nil, err
	}

	cancelSent := false
	for {
		if !cancelSent {
			select {
			case <-ctx.Done():
				if err := a.sendCancel(pc.ID, messageID); err != nil {
					return nil, err
				}
				cancelSent = true
			default:
			}
		}

		_, rsp, _, err := a.receive()
		if err != nil {
			return nil, err
		}
		if rsp.CommandField != types.CMoveRSP {
			return nil, &dicomerr.MalformedResponseError{
				Operation: "c-move",
				Msg:       fmt.Sprintf("unexpected command 0x%04X", rsp.CommandField),
			}
		}

		ops := subOperationsFrom(rsp)
		switch types.ClassifyStatus(rsp.Status) {
		case types.StatusClassPending:
			if onProgress != nil {
				onProgress(ops)
			}

		case types.StatusClassSuccess, types.StatusClassCancel, types.StatusClassWarning:
			return &MoveResult{Status: rsp.Status, SubOperations: ops}, nil

		default:
			return &MoveResult{Status: rsp.Status, SubOperations: ops},
				&dicomerr.ServiceFailureError{Operation: "c-move", Status: rsp.Status}
		}
	}
}
