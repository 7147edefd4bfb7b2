package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

func (s *SupervisorServiceServer) Stop(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.logger.Info("Stopping backend", zap.String("caller", callerFromContext(ctx)))
	s.backend.Stop()
	return protov1.StatusToProto(s.backend.Status()), nil
}
