package main

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lib.ErrUnsupportedBackend):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, lib.ErrLaunchTargetMissing),
		errors.Is(err, lib.ErrManifestMissing),
		errors.Is(err, lib.ErrStaleMarker):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, lib.ErrReadinessTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Aborted, err.Error())
	}
}
