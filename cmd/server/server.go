package main

import (
	"context"

	"go.uber.org/zap"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

// Backend is the part of supervisor.Supervisor the service needs.
type Backend interface {
	Start(ctx context.Context, kind lib.BackendKind) (bool, error)
	Stop()
	Status() lib.SupervisorStatus
	Output(ctx context.Context) (<-chan []byte, <-chan []byte, error)
	Subscribe() (chan lib.SupervisorStatus, error)
	Unsubscribe(ch chan lib.SupervisorStatus)
}

type Provisioner interface {
	Provision(ctx context.Context, kind lib.BackendKind) (bool, error)
}

type SupervisorServiceServer struct {
	backend     Backend
	provisioner Provisioner
	defaultKind lib.BackendKind
	logger      *zap.Logger
}

var _ protov1.SupervisorServer = (*SupervisorServiceServer)(nil)

func NewSupervisorServiceServer(backend Backend, provisioner Provisioner, defaultKind lib.BackendKind, logger *zap.Logger) *SupervisorServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupervisorServiceServer{
		backend:     backend,
		provisioner: provisioner,
		defaultKind: defaultKind,
		logger:      logger,
	}
}

func (s *SupervisorServiceServer) kind(requested string) lib.BackendKind {
	if requested == "" {
		return s.defaultKind
	}
	return lib.BackendKind(requested)
}
