package client

import (
	"fmt"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// Echo performs a C-ECHO round trip. A nil error means the peer verified the
// association; any non-success status surfaces as ServiceFailureError.
func (a *Association) Echo() error {
	if err := a.requireEstablished(); err != nil {
		return err
	}

	pc, err := a.ContextFor(types.VerificationSOPClass)
	if err != nil {
		return err
	}

	messageID := a.nextID()
	err = a.exchange.Send(pc.ID, &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           messageID,
		AffectedSOPClassUID: types.VerificationSOPClass,
		CommandDataSetType:  types.NoDataSet,
	}, nil)
	if err != nil {
		return err
	}

	_, rsp, _, err := a.receive()
	if err != nil {
		return err
	}
	if rsp.CommandField != types.CEchoRSP {
		return &dicomerr.MalformedResponseError{
			Operation: "c-echo",
			Msg:       fmt.Sprintf("unexpected command 0x%04X", rsp.CommandField),
		}
	}
	if rsp.MessageIDBeingRespondedTo != messageID {
		return &dicomerr.MalformedResponseError{
			Operation: "c-echo",
			Msg: fmt.Sprintf("response to message %d, expected %d",
				rsp.MessageIDBeingRespondedTo, messageID),
		}
	}
	if rsp.Status != types.StatusSuccess {
		return &dicomerr.ServiceFailureError{Operation: "c-echo", Status: rsp.Status}
	}
	return nil
}
