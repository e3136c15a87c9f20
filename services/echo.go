package services

import (
	"context"
	"log/slog"

	"github.com/pacsops/dicomqr/types"
)

// EchoService answers C-ECHO verification requests.
type EchoService struct {
	logger *slog.Logger
}

// NewEchoService creates a verification service.
func NewEchoService(logger *slog.Logger) *EchoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EchoService{logger: logger}
}

// Handle implements Handler.
func (s *EchoService) Handle(ctx context.Context, req *types.Message, transferSyntax string, data []byte) (*types.Message, []byte, error) {
	s.logger.Debug("verification request", "message_id", req.MessageID)
	return &types.Message{
		CommandField:              types.CEchoRSP,
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       types.VerificationSOPClass,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusSuccess,
	}, nil, nil
}
