package main

import (
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/supervisor"
)

func (s *SupervisorServiceServer) GetOutput(_ *emptypb.Empty, streaming grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := streaming.Context()
	stdout, stderr, err := s.backend.Output(ctx)
	if err != nil {
		if errors.Is(err, supervisor.ErrNoProcess) {
			return status.Error(codes.NotFound, "no backend process")
		}
		return status.Errorf(codes.Internal, "error subscribing to output: %v", err)
	}

	for {
		if stdout == nil && stderr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			if err := streaming.Send(protov1.OutputToProto(protov1.StreamStdout, chunk)); err != nil {
				return err
			}
		case chunk, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			if err := streaming.Send(protov1.OutputToProto(protov1.StreamStderr, chunk)); err != nil {
				return err
			}
		}
	}
}
