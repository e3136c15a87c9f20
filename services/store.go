package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pacsops/dicomqr/types"
)

// StoreSink consumes one received instance. The returned DIMSE status becomes
// the C-STORE response status.
type StoreSink func(sopClassUID, sopInstanceUID, transferSyntax string, data []byte) uint16

// StoreService receives C-STORE requests and hands the instances to a sink.
// The download orchestrator plugs its Part 10 writer in here.
type StoreService struct {
	sink   StoreSink
	logger *slog.Logger
}

// NewStoreService creates a storage service around sink.
func NewStoreService(sink StoreSink, logger *slog.Logger) *StoreService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreService{sink: sink, logger: logger}
}

// Handle implements Handler.
func (s *StoreService) Handle(ctx context.Context, req *types.Message, transferSyntax string, data []byte) (*types.Message, []byte, error) {
	if len(data) == 0 {
		s.logger.Warn("store request without dataset",
			"sop_instance_uid", req.AffectedSOPInstanceUID)
		return ErrorResponse(req, types.StatusUnableToProcess), nil, nil
	}

	status := s.sink(req.AffectedSOPClassUID, req.AffectedSOPInstanceUID, transferSyntax, data)
	s.logger.Debug("stored instance",
		"sop_class_uid", req.AffectedSOPClassUID,
		"sop_instance_uid", req.AffectedSOPInstanceUID,
		"bytes", len(data),
		"status", fmt.Sprintf("0x%04X", status))

	return &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}, nil, nil
}
