package logging

import (
	"testing"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
)

func TestNew(t *testing.T) {
	for _, enc := range []string{"", "console", "json"} {
		logger, err := New(config.Log{Level: "debug", Encoding: enc})
		if err != nil {
			t.Fatalf("encoding %q: %v", enc, err)
		}
		logger.Debug("hello")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(config.Log{Level: "loud"}); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := New(config.Log{Level: "info", Encoding: "xml"}); err == nil {
		t.Fatalf("expected error for bad encoding")
	}
}
