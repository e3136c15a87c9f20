package client

import (
	"context"
	"fmt"

	"github.com/pacsops/dicomqr/dicom"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// StoreHandler consumes one instance delivered during a C-GET. data is the
// dataset as received, encoded under transferSyntax. The returned DIMSE
// status becomes the C-STORE response; return types.StatusSuccess to accept.
type StoreHandler func(sopClassUID, sopInstanceUID, transferSyntax string, data []byte) uint16

// GetResult summarizes a completed C-GET.
type GetResult struct {
	Status        uint16
	SubOperations SubOperations
}

// Get retrieves instances over this association. The peer interleaves
// C-STORE requests with C-GET responses on the same connection; every
// inbound instance is handed to handle and answered before the next read.
//
// The association must have storage SOP classes among its requested contexts
// or the peer has nowhere to send the instances.
//
// Canceling ctx sends a C-CANCEL; the peer finishes with a cancel terminal
// status and Get returns that result normally.
func (a *Association) Get(ctx context.Context, sopClassUID string, identifier *dicom.Dataset, handle StoreHandler, onProgress func(SubOperations)) (*GetResult, error) {
	if err := a.requireEstablished(); err != nil {
		return nil, err
	}
	if identifier == nil {
		return nil, fmt.Errorf("get requires an identifier dataset")
	}
	if handle == nil {
		return nil, fmt.Errorf("get requires a store handler")
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
		CommandField:        types.CGetRQ,
		MessageID:           messageID,
		AffectedSOPClassUID: sopClassUID,
		CommandDataSetType:  types.DataSetPresent,
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

		ctxID, rsp, data, err := a.receive()
		if err != nil {
			return nil, err
		}

		switch rsp.CommandField {
		case types.CStoreRQ:
			if err := a.answerInterleavedStore(ctxID, rsp, data, handle); err != nil {
				return nil, err
			}

		case types.CGetRSP:
			ops := subOperationsFrom(rsp)
			switch types.ClassifyStatus(rsp.Status) {
			case types.StatusClassPending:
				if onProgress != nil {
					onProgress(ops)
				}
			case types.StatusClassSuccess, types.StatusClassCancel, types.StatusClassWarning:
				return &GetResult{Status: rsp.Status, SubOperations: ops}, nil
			default:
				return &GetResult{Status: rsp.Status, SubOperations: ops},
					&dicomerr.ServiceFailureError{Operation: "c-get", Status: rsp.Status}
			}

		default:
			return nil, &dicomerr.MalformedResponseError{
				Operation: "c-get",
				Msg:       fmt.Sprintf("unexpected command 0x%04X", rsp.CommandField),
			}
		}
	}
}

// answerInterleavedStore dispatches one inbound C-STORE to the handler and
// sends the response on the context the request arrived on.
func (a *Association) answerInterleavedStore(ctxID byte, rq *types.Message, data []byte, handle StoreHandler) error {
	pc, ok := a.contextByID(ctxID)
	if !ok {
		return &dicomerr.MalformedResponseError{
			Operation: "c-get",
			Msg:       fmt.Sprintf("inbound store on unnegotiated context %d", ctxID),
		}
	}

	status := handle(rq.AffectedSOPClassUID, rq.AffectedSOPInstanceUID, pc.TransferSyntax, data)
	a.logger.Debug("answered interleaved store",
		"sop_instance_uid", rq.AffectedSOPInstanceUID,
		"status", fmt.Sprintf("0x%04X", status))

	return a.exchange.Send(ctxID, &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: rq.MessageID,
		AffectedSOPClassUID:       rq.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    rq.AffectedSOPInstanceUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}, nil)
}
