// Package services provides the SCP-side DIMSE service handlers and the
// registry that routes incoming requests to them.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pacsops/dicomqr/types"
)

// Handler processes one DIMSE request. transferSyntax is the negotiated
// syntax of the presentation context the request arrived on; data is the
// request's dataset, nil when the command declared none. The returned message
// and dataset form the response.
type Handler interface {
	Handle(ctx context.Context, req *types.Message, transferSyntax string, data []byte) (*types.Message, []byte, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *types.Message, transferSyntax string, data []byte) (*types.Message, []byte, error)

func (f HandlerFunc) Handle(ctx context.Context, req *types.Message, transferSyntax string, data []byte) (*types.Message, []byte, error) {
	return f(ctx, req, transferSyntax, data)
}

// Registry routes DIMSE requests by command field. One handler per command;
// registering again replaces the previous handler.
type Registry struct {
	handlers map[uint16]Handler
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[uint16]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a DIMSE command field.
func (r *Registry) Register(commandField uint16, handler Handler) {
	r.handlers[commandField] = handler
}

// Handle dispatches a request to its registered handler. Unregistered
// commands answer with a failure status rather than an error, so one bad
// request does not end the association.
func (r *Registry) Handle(ctx context.Context, req *types.Message, transferSyntax string, data []byte) (*types.Message, []byte, error) {
	r.logger.Debug("routing DIMSE request",
		"command_field", fmt.Sprintf("0x%04X", req.CommandField),
		"message_id", req.MessageID)

	handler, ok := r.handlers[req.CommandField]
	if !ok {
		r.logger.Warn("no handler for DIMSE command",
			"command_field", fmt.Sprintf("0x%04X", req.CommandField))
		return ErrorResponse(req, types.StatusUnableToProcess), nil, nil
	}
	return handler.Handle(ctx, req, transferSyntax, data)
}

// ErrorResponse builds the failure response for a request.
func ErrorResponse(req *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.ResponseCommandFor(req.CommandField),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}
