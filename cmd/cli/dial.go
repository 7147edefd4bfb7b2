package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
)

func dial(addr string) (*grpc.ClientConn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = os.Getenv("OCRS_ADDRESS")
	}
	if strings.TrimSpace(addr) == "" {
		addr = config.Default().Server.Address
	}

	creds, err := clientCredentials()
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
}

func clientCredentials() (credentials.TransportCredentials, error) {
	keyPEM := os.Getenv("OCRS_TLS_KEY")
	certPEM := os.Getenv("OCRS_TLS_CERT")
	caPEM := os.Getenv("OCRS_CA_TLS_CERT")
	if strings.TrimSpace(keyPEM) == "" && strings.TrimSpace(certPEM) == "" && strings.TrimSpace(caPEM) == "" {
		return insecure.NewCredentials(), nil
	}
	if strings.TrimSpace(keyPEM) == "" || strings.TrimSpace(certPEM) == "" || strings.TrimSpace(caPEM) == "" {
		return nil, errors.New("incomplete TLS environment; require OCRS_TLS_KEY, OCRS_TLS_CERT, OCRS_CA_TLS_CERT")
	}

	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse TLS cert/key from env: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(caPEM)) {
		return nil, errors.New("failed to parse CA cert from env")
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}), nil
}

// grpcMessage strips the gRPC status wrapper for user-facing errors.
func grpcMessage(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return err.Error()
	}
	return st.Code().String() + ": " + st.Message()
}
