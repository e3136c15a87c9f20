package client

import (
	"fmt"

	"github.com/pacsops/dicomqr/dicom"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// FindIterator yields C-FIND match datasets one at a time, in arrival order.
// It is finite and not restartable: once a terminal status arrives, Next
// returns false and Status/Err report the outcome.
//
//	it, err := assoc.Find(sopClass, identifier)
//	for it.Next() {
//	    use(it.Dataset())
//	}
//	if err := it.Err(); err != nil { ... }
type FindIterator struct {
	assoc     *Association
	pc        *PresentationContext
	messageID uint16

	current *dicom.Dataset
	status  uint16
	done    bool
	err     error
}

// Find issues a C-FIND request. sopClassUID selects the information model;
// the identifier dataset carries the match and return keys.
func (a *Association) Find(sopClassUID string, identifier *dicom.Dataset) (*FindIterator, error) {
	if err := a.requireEstablished(); err != nil {
		return nil, err
	}
	if identifier == nil {
		return nil, fmt.Errorf("find requires an identifier dataset")
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
		CommandField:        types.CFindRQ,
		MessageID:           messageID,
		AffectedSOPClassUID: sopClassUID,
		CommandDataSetType:  types.DataSetPresent,
	}, encoded)
	if err != nil {
		return nil, err
	}

	return &FindIterator{assoc: a, pc: pc, messageID: messageID}, nil
}

// Next advances to the next pending match. It returns false at the terminal
// response or on error.
func (it *FindIterator) Next() bool {
	if it.done {
		return false
	}

	_, rsp, data, err := it.assoc.receive()
	if err != nil {
		it.fail(err)
		return false
	}
	if rsp.CommandField != types.CFindRSP {
		it.fail(&dicomerr.MalformedResponseError{
			Operation: "c-find",
			Msg:       fmt.Sprintf("unexpected command 0x%04X", rsp.CommandField),
		})
		return false
	}

	it.status = rsp.Status
	switch types.ClassifyStatus(rsp.Status) {
	case types.StatusClassPending:
		if len(data) == 0 {
			it.fail(&dicomerr.MalformedResponseError{
				Operation: "c-find",
				Msg:       "pending response without identifier dataset",
			})
			return false
		}
		ds, err := dicom.Decode(data, it.pc.TransferSyntax)
		if err != nil {
			it.fail(err)
			return false
		}
		it.current = ds
		return true

	case types.StatusClassSuccess, types.StatusClassCancel:
		it.done = true
		return false

	default:
		it.fail(&dicomerr.ServiceFailureError{Operation: "c-find", Status: rsp.Status})
		return false
	}
}

func (it *FindIterator) fail(err error) {
	it.done = true
	it.err = err
}

// Dataset returns the match produced by the last successful Next.
func (it *FindIterator) Dataset() *dicom.Dataset { return it.current }

// Status returns the most recent response status. After iteration ends it
// holds the terminal status; a cancel terminal status is a normal completion.
func (it *FindIterator) Status() uint16 { return it.status }

// Err returns the error that stopped iteration, nil on clean completion.
func (it *FindIterator) Err() error { return it.err }

// Cancel sends C-CANCEL for this query. The SCP answers with a cancel
// terminal status, which subsequent Next calls consume as a normal end.
func (it *FindIterator) Cancel() error {
	if it.done {
		return nil
	}
	return it.assoc.sendCancel(it.pc.ID, it.messageID)
}
