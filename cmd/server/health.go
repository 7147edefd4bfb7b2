package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

// HealthServiceName returns the health service name that reports whether kind is ready.
func HealthServiceName(kind lib.BackendKind) string {
	return protov1.ServiceName + "/" + kind.String()
}

// watchHealth mirrors backend readiness into the health server until ctx is done.
// The daemon itself is always SERVING under the empty service name.
func watchHealth(ctx context.Context, backend Backend, hs *health.Server, kinds []lib.BackendKind, logger *zap.Logger) {
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, kind := range kinds {
		hs.SetServingStatus(HealthServiceName(kind), healthpb.HealthCheckResponse_NOT_SERVING)
	}

	ch, err := backend.Subscribe()
	if err != nil {
		logger.Warn("Cannot follow backend status", zap.Error(err))
		return
	}
	defer backend.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			for _, kind := range kinds {
				serving := healthpb.HealthCheckResponse_NOT_SERVING
				if st.Kind == kind && st.Running {
					serving = healthpb.HealthCheckResponse_SERVING
				}
				hs.SetServingStatus(HealthServiceName(kind), serving)
			}
		}
	}
}
