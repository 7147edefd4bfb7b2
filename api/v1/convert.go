package v1

import (
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// StatusToProto encodes a supervisor status as a Struct with the fields
// kind, state, running, timed_out, run_id, pid and started_at (RFC 3339).
func StatusToProto(st lib.SupervisorStatus) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"kind":      structpb.NewStringValue(st.Kind.String()),
		"state":     structpb.NewStringValue(st.State.String()),
		"running":   structpb.NewBoolValue(st.Running),
		"timed_out": structpb.NewBoolValue(st.TimedOut),
		"run_id":    structpb.NewStringValue(st.RunID),
		"pid":       structpb.NewNumberValue(float64(st.PID)),
	}
	if !st.StartedAt.IsZero() {
		fields["started_at"] = structpb.NewStringValue(st.StartedAt.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

func StatusFromProto(s *structpb.Struct) lib.SupervisorStatus {
	f := s.GetFields()
	st := lib.SupervisorStatus{
		Kind:     lib.BackendKind(f["kind"].GetStringValue()),
		State:    lib.ParseState(f["state"].GetStringValue()),
		Running:  f["running"].GetBoolValue(),
		TimedOut: f["timed_out"].GetBoolValue(),
		RunID:    f["run_id"].GetStringValue(),
		PID:      int(f["pid"].GetNumberValue()),
	}
	if raw := f["started_at"].GetStringValue(); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			st.StartedAt = t
		}
	}
	return st
}

// OutputToProto encodes one output chunk. Invalid UTF-8 is replaced, since
// proto3 strings must be valid.
func OutputToProto(stream string, data []byte) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"stream": structpb.NewStringValue(stream),
		"data":   structpb.NewStringValue(strings.ToValidUTF8(string(data), "�")),
	}}
}

func OutputFromProto(s *structpb.Struct) (stream string, data []byte) {
	f := s.GetFields()
	return f["stream"].GetStringValue(), []byte(f["data"].GetStringValue())
}
