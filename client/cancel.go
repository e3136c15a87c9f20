package client

import (
	"github.com/pacsops/dicomqr/types"
)

// sendCancel writes a C-CANCEL-RQ on an in-flight operation's presentation
// context. C-CANCEL has no response of its own; the canceled operation ends
// with a cancel terminal status.
func (a *Association) sendCancel(contextID byte, messageID uint16) error {
	a.logger.Debug("sending C-CANCEL", "context_id", contextID, "message_id", messageID)
	return a.exchange.Send(contextID, &types.Message{
		CommandField:              types.CCancelRQ,
		MessageIDBeingRespondedTo: messageID,
		CommandDataSetType:        types.NoDataSet,
	}, nil)
}
