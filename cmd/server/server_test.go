package main

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	protov1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/output_storage"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/supervisor"
)

type fakeBackend struct {
	mu       sync.Mutex
	status   lib.SupervisorStatus
	startErr error
	started  []lib.BackendKind
	stopped  int
	output   bool
	follow   bool
	released chan struct{}
	bus      *output_storage.Broadcaster[lib.SupervisorStatus]
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{bus: output_storage.RunNewBroadcaster[lib.SupervisorStatus]()}
}

func (b *fakeBackend) Start(_ context.Context, kind lib.BackendKind) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, kind)
	if b.startErr != nil {
		return false, b.startErr
	}
	b.status = lib.SupervisorStatus{Kind: kind, State: lib.StateReady, Running: true, PID: 77, RunID: "r1"}
	b.bus.Publish(b.status)
	return true, nil
}

func (b *fakeBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped++
	b.status = lib.SupervisorStatus{Kind: b.status.Kind, State: lib.StateStopped}
	b.bus.Publish(b.status)
}

func (b *fakeBackend) Status() lib.SupervisorStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *fakeBackend) Output(ctx context.Context) (<-chan []byte, <-chan []byte, error) {
	if !b.output {
		return nil, nil, supervisor.ErrNoProcess
	}
	if b.follow {
		// a live backend: the streams stay open until the caller goes away
		stdout := make(chan []byte, 1)
		stdout <- []byte("still loading\n")
		go func() {
			<-ctx.Done()
			close(b.released)
		}()
		return stdout, make(chan []byte), nil
	}
	stdout := make(chan []byte, 2)
	stderr := make(chan []byte, 1)
	stdout <- []byte("loading model\n")
	stdout <- []byte("listening\n")
	stderr <- []byte("warning: no GPU\n")
	close(stdout)
	close(stderr)
	return stdout, stderr, nil
}

func (b *fakeBackend) Subscribe() (chan lib.SupervisorStatus, error) { return b.bus.Subscribe() }
func (b *fakeBackend) Unsubscribe(ch chan lib.SupervisorStatus)    { b.bus.Unsubscribe(ch) }

type fakeProvisioner struct {
	err error
}

func (p fakeProvisioner) Provision(context.Context, lib.BackendKind) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return true, nil
}

func newTestClient(t *testing.T, backend Backend, prov Provisioner) (*protov1.SupervisorClient, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(identity{}.unary), grpc.StreamInterceptor(identity{}.stream))
	protov1.RegisterSupervisorServer(s, NewSupervisorServiceServer(backend, prov, lib.BackendPaddleOCR, nil))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return protov1.NewSupervisorClient(conn), conn
}

func TestStartAndStatus(t *testing.T) {
	backend := newFakeBackend()
	client, _ := newTestClient(t, backend, fakeProvisioner{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Start(ctx, wrapperspb.String(""))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := protov1.StatusFromProto(resp)
	if !st.Running || st.State != lib.StateReady || st.PID != 77 {
		t.Fatalf("unexpected status %+v", st)
	}
	if backend.started[0] != lib.BackendPaddleOCR {
		t.Fatalf("empty kind should default to PaddleOCR, got %s", backend.started[0])
	}

	resp, err = client.Stop(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := protov1.StatusFromProto(resp); st.Running || st.State != lib.StateStopped {
		t.Fatalf("unexpected status after stop %+v", st)
	}

	resp, err = client.Status(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st := protov1.StatusFromProto(resp); st.State != lib.StateStopped {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStartErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{lib.ErrUnsupportedBackend, codes.InvalidArgument},
		{lib.ErrLaunchTargetMissing, codes.FailedPrecondition},
		{lib.ErrStaleMarker, codes.FailedPrecondition},
		{lib.ErrReadinessTimeout, codes.DeadlineExceeded},
		{lib.ErrExitedBeforeReady, codes.Aborted},
		{lib.ErrSpawnFailed, codes.Aborted},
	}
	for _, tc := range cases {
		backend := newFakeBackend()
		backend.startErr = tc.err
		client, _ := newTestClient(t, backend, fakeProvisioner{})

		_, err := client.Start(context.Background(), wrapperspb.String("PaddleOCR"))
		if got := status.Code(err); got != tc.code {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.code, got)
		}
	}
}

func TestProvision(t *testing.T) {
	client, _ := newTestClient(t, newFakeBackend(), fakeProvisioner{})
	resp, err := client.Provision(context.Background(), wrapperspb.String("PaddleOCR"))
	if err != nil || !resp.GetValue() {
		t.Fatalf("Provision: %v %v", resp, err)
	}

	client, _ = newTestClient(t, newFakeBackend(), fakeProvisioner{err: lib.ErrManifestMissing})
	if _, err := client.Provision(context.Background(), wrapperspb.String("PaddleOCR")); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestGetOutput(t *testing.T) {
	backend := newFakeBackend()
	client, _ := newTestClient(t, backend, fakeProvisioner{})

	stream, err := client.GetOutput(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound without a backend, got %v", err)
	}

	backend.output = true
	stream, err = client.GetOutput(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	got := map[string]string{}
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		name, data := protov1.OutputFromProto(msg)
		got[name] += string(data)
	}
	if got[protov1.StreamStdout] != "loading model\nlistening\n" || got[protov1.StreamStderr] != "warning: no GPU\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestGetOutputReleasesFollowOnDisconnect(t *testing.T) {
	backend := newFakeBackend()
	backend.output = true
	backend.follow = true
	backend.released = make(chan struct{})
	client, _ := newTestClient(t, backend, fakeProvisioner{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := client.GetOutput(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if msg, err := stream.Recv(); err != nil {
		t.Fatalf("Recv: %v", err)
	} else if _, data := protov1.OutputFromProto(msg); string(data) != "still loading\n" {
		t.Fatalf("unexpected chunk %q", data)
	}

	cancel()
	select {
	case <-backend.released:
	case <-time.After(2 * time.Second):
		t.Fatalf("output subscription outlived the client stream")
	}
}

func TestWatchHealth(t *testing.T) {
	backend := newFakeBackend()
	hs := health.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		watchHealth(ctx, backend, hs, []lib.BackendKind{lib.BackendPaddleOCR}, zapNop())
		close(done)
	}()

	name := HealthServiceName(lib.BackendPaddleOCR)
	waitServing := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			resp, err := hs.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
			if err == nil && resp.GetStatus() == want {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("health never became %s (last %v, %v)", want, resp, err)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitServing(healthpb.HealthCheckResponse_NOT_SERVING)
	// the subscription may not exist yet when the first status is published
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, _ = backend.Start(ctx, lib.BackendPaddleOCR)
		resp, _ := hs.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
		if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("health never became SERVING")
		}
		time.Sleep(10 * time.Millisecond)
	}
	backend.Stop()
	waitServing(healthpb.HealthCheckResponse_NOT_SERVING)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("watchHealth did not return after cancel")
	}
}
