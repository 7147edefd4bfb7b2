package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

const (
	envTLSKey  = "OCRS_TLS_KEY"
	envTLSCert = "OCRS_TLS_CERT"
	envCACert  = "OCRS_CA_TLS_CERT"
)

// GRPCServer encapsulates transport configuration, gRPC server instance and listener.
type GRPCServer struct {
	lis    net.Listener
	s      *grpc.Server
	health *health.Server
	tls    bool
}

// NewGRPCServer listens on addr and registers the supervisor and health services.
// With OCRS_TLS_KEY, OCRS_TLS_CERT and OCRS_CA_TLS_CERT set it requires client certs (mTLS);
// with none of them set it serves plaintext, which is only accepted on a loopback address.
func NewGRPCServer(addr string, service protov1.SupervisorServer, logger *zap.Logger) (*GRPCServer, error) {
	creds, secure, err := serverCredentials()
	if err != nil {
		return nil, err
	}
	if !secure && !isLoopback(addr) {
		return nil, fmt.Errorf("refusing plaintext gRPC on non-loopback address %s; set %s, %s and %s", addr, envTLSKey, envTLSCert, envCACert)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	auth := identity{require: secure}
	s := grpc.NewServer(grpc.Creds(creds), grpc.UnaryInterceptor(auth.unary), grpc.StreamInterceptor(auth.stream))
	protov1.RegisterSupervisorServer(s, service)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	if !secure {
		logger.Warn("TLS not configured, serving plaintext on loopback", zap.String("address", addr))
	}
	return &GRPCServer{lis: lis, s: s, health: hs, tls: secure}, nil
}

func serverCredentials() (credentials.TransportCredentials, bool, error) {
	keyPEM := os.Getenv(envTLSKey)
	certPEM := os.Getenv(envTLSCert)
	caPEM := os.Getenv(envCACert)
	if keyPEM == "" && certPEM == "" && caPEM == "" {
		return insecure.NewCredentials(), false, nil
	}
	if keyPEM == "" || certPEM == "" || caPEM == "" {
		return nil, false, fmt.Errorf("incomplete TLS environment; require %s, %s, %s", envTLSKey, envTLSCert, envCACert)
	}

	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load server key pair: %w", err)
	}

	caPool := x509.NewCertPool()
	if ok := caPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
		return nil, false, errors.New("failed to append CA certificate to pool")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}
	return credentials.NewTLS(tlsConfig), true, nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Serve starts serving gRPC on the configured listener.
func (g *GRPCServer) Serve() error {
	return g.s.Serve(g.lis)
}

// Addr returns the network address the server is bound to.
func (g *GRPCServer) Addr() net.Addr { return g.lis.Addr() }

// Health is the health server mirroring backend readiness.
func (g *GRPCServer) Health() *health.Server { return g.health }

// Stop gracefully stops the gRPC server, forcing it after timeout.
func (g *GRPCServer) Stop(timeout time.Duration) {
	g.health.Shutdown()
	done := make(chan struct{})
	go func() {
		g.s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		g.s.Stop()
		<-done
	}
}
