package client

import (
	"fmt"

	"github.com/pacsops/dicomqr/dicom"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// Store pushes one composite object to the peer with C-STORE. The dataset
// must carry its SOP class and instance UIDs; the negotiated context for the
// object's SOP class decides the wire transfer syntax.
func (a *Association) Store(ds *dicom.Dataset) error {
	if err := a.requireEstablished(); err != nil {
		return err
	}
	if ds == nil {
		return fmt.Errorf("store requires a dataset")
	}
	sopClass := ds.GetString(dicom.TagSOPClassUID)
	sopInstance := ds.GetString(dicom.TagSOPInstanceUID)
	if sopClass == "" || sopInstance == "" {
		return fmt.Errorf("store dataset missing SOP class or instance UID")
	}

	pc, err := a.ContextFor(sopClass)
	if err != nil {
		return err
	}
	encoded, err := dicom.Encode(ds, pc.TransferSyntax)
	if err != nil {
		return err
	}

	messageID := a.nextID()
	err = a.exchange.Send(pc.ID, &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              messageID,
		AffectedSOPClassUID:    sopClass,
		AffectedSOPInstanceUID: sopInstance,
		CommandDataSetType:     types.DataSetPresent,
	}, encoded)
	if err != nil {
		return err
	}

	_, rsp, _, err := a.receive()
	if err != nil {
		return err
	}
	if rsp.CommandField != types.CStoreRSP {
		return &dicomerr.MalformedResponseError{
			Operation: "c-store",
			Msg:       fmt.Sprintf("unexpected command 0x%04X", rsp.CommandField),
		}
	}
	switch types.ClassifyStatus(rsp.Status) {
	case types.StatusClassSuccess, types.StatusClassWarning:
		return nil
	default:
		return &dicomerr.ServiceFailureError{Operation: "c-store", Status: rsp.Status}
	}
}
