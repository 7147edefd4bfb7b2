package main

import (
	"context"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

func (s *SupervisorServiceServer) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return protov1.StatusToProto(s.backend.Status()), nil
}
