package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *SupervisorServiceServer) Provision(ctx context.Context, request *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	kind := s.kind(request.GetValue())
	s.logger.Info("Provisioning backend environment", zap.String("kind", kind.String()), zap.String("caller", callerFromContext(ctx)))

	ok, err := s.provisioner.Provision(ctx, kind)
	if err != nil {
		s.logger.Warn("Provisioning failed", zap.String("kind", kind.String()), zap.Error(err))
		return nil, toStatusError(err)
	}
	return wrapperspb.Bool(ok), nil
}
