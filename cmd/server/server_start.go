package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

// Start blocks for the whole readiness wait. A caller that goes away cancels the start,
// which stops the backend.
func (s *SupervisorServiceServer) Start(ctx context.Context, request *wrapperspb.StringValue) (*structpb.Struct, error) {
	kind := s.kind(request.GetValue())
	s.logger.Info("Starting backend", zap.String("kind", kind.String()), zap.String("caller", callerFromContext(ctx)))

	ready, err := s.backend.Start(ctx, kind)
	if err != nil {
		s.logger.Warn("Backend start failed", zap.String("kind", kind.String()), zap.Error(err))
		return nil, toStatusError(err)
	}
	s.logger.Info("Backend started", zap.String("kind", kind.String()), zap.Bool("ready", ready))
	return protov1.StatusToProto(s.backend.Status()), nil
}
