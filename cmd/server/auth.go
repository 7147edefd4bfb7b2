package main

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const anonymousCaller = "anonymous"

type spiffeIdContextKey struct{}

func extractSpiffeIdFromContext(ctx context.Context) *string {
	if v := ctx.Value(spiffeIdContextKey{}); v != nil {
		if spiffeId, ok := v.(string); ok {
			return &spiffeId
		}
	}
	return nil
}

func extractSpiffeIdFromTls(ctx context.Context) *string {
	// First, check if it was already injected into context.
	if v := extractSpiffeIdFromContext(ctx); v != nil {
		return v
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p == nil {
		return nil
	}

	ti, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return nil
	}

	state := ti.State
	if len(state.PeerCertificates) == 0 || state.PeerCertificates[0] == nil {
		return nil
	}
	leaf := state.PeerCertificates[0]

	for _, uri := range leaf.URIs {
		if uri == nil {
			continue
		}
		if uri.Scheme == "spiffe" {
			// spiffe://client1 -> "client1"
			return &uri.Host
		}
	}

	return nil
}

func injectSpiffeId(ctx context.Context, spiffeId string) context.Context {
	return context.WithValue(ctx, spiffeIdContextKey{}, spiffeId)
}

// callerFromContext names the caller for logs.
func callerFromContext(ctx context.Context) string {
	if id := extractSpiffeIdFromContext(ctx); id != nil {
		return *id
	}
	return anonymousCaller
}

type streamWithCtx struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *streamWithCtx) Context() context.Context { return s.ctx }

// identity resolves the caller's SPIFFE ID. Under mTLS a client without one is rejected;
// on an insecure loopback listener every caller is anonymous.
type identity struct {
	require bool
}

func (a identity) resolve(ctx context.Context) (context.Context, error) {
	spiffeId := extractSpiffeIdFromTls(ctx)
	if spiffeId == nil {
		if a.require {
			return nil, status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
		}
		return ctx, nil
	}
	return injectSpiffeId(ctx, *spiffeId), nil
}

func (a identity) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := a.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (a identity) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := a.resolve(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, &streamWithCtx{ServerStream: ss, ctx: ctx})
}
