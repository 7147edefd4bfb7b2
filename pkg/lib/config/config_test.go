package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.AppRoot = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Readiness.MaxAttempts != 90 || cfg.Readiness.Interval.Duration != time.Second {
		t.Fatalf("unexpected readiness budget: %d x %s", cfg.Readiness.MaxAttempts, cfg.Readiness.Interval)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ocrs.yaml")
	data := `
app_root: ` + dir + `
backends:
  EasyOCR:
    dir: EasyOCR
    script: run.sh
    port: 8001
    marker: easyocr_ready.txt
readiness:
  interval: 250ms
  max_attempts: 12
stop:
  grace_period: 2s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OCRS_READY_MAX_ATTEMPTS", "20")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Readiness.Interval.Duration != 250*time.Millisecond {
		t.Fatalf("interval: got %s", cfg.Readiness.Interval)
	}
	if cfg.Readiness.MaxAttempts != 20 {
		t.Fatalf("env override not applied: %d", cfg.Readiness.MaxAttempts)
	}
	if cfg.Stop.GracePeriod.Duration != 2*time.Second {
		t.Fatalf("grace: got %s", cfg.Stop.GracePeriod)
	}
	// yaml merges into the default map, so the built-in kind stays available
	if _, err := cfg.Backend(lib.BackendPaddleOCR); err != nil {
		t.Fatalf("PaddleOCR missing: %v", err)
	}
	b, err := cfg.Backend("EasyOCR")
	if err != nil {
		t.Fatalf("EasyOCR missing: %v", err)
	}
	if b.Port != 8001 {
		t.Fatalf("port: got %d", b.Port)
	}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ocrs.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesBackendFields(t *testing.T) {
	path := writeConfig(t, `
app_root: `+t.TempDir()+`
backends:
  PaddleOCR:
    port: 9100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	b, err := cfg.Backend(lib.BackendPaddleOCR)
	if err != nil {
		t.Fatalf("PaddleOCR missing: %v", err)
	}
	def := Default().Backends[lib.BackendPaddleOCR]
	if b.Port != 9100 || b.Dir != def.Dir || b.Script != def.Script || b.Marker != def.Marker {
		t.Fatalf("port-only override should keep the other defaults, got %+v", b)
	}
}

func TestLoadRemovesBackendWithNullEntry(t *testing.T) {
	path := writeConfig(t, `
app_root: `+t.TempDir()+`
backends:
  PaddleOCR: ~
  EasyOCR:
    dir: EasyOCR
    script: run.sh
    port: 8001
    marker: easyocr_ready.txt
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := cfg.Backend(lib.BackendPaddleOCR); !errors.Is(err, lib.ErrUnsupportedBackend) {
		t.Fatalf("PaddleOCR should be removed, got %v", err)
	}
	if kinds := cfg.Kinds(); len(kinds) != 1 || kinds[0] != "EasyOCR" {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}

func TestLoadRejectsPartialNewBackend(t *testing.T) {
	path := writeConfig(t, `
app_root: `+t.TempDir()+`
backends:
  EasyOCR:
    port: 8001
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "EasyOCR") {
		t.Fatalf("expected validation error for incomplete EasyOCR, got %v", err)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("OCRS_APP_ROOT", t.TempDir())
	t.Setenv("OCRS_READY_MAX_ATTEMPTS", "twenty")
	t.Setenv("OCRS_READY_WATCH", "maybe")
	t.Setenv("OCRS_STOP_GRACE", "2s")

	_, err := Load("")
	if err == nil {
		t.Fatalf("expected malformed overrides to fail Load")
	}
	for _, key := range []string{"OCRS_READY_MAX_ATTEMPTS", "OCRS_READY_WATCH"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error should name %s: %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "OCRS_STOP_GRACE") {
		t.Fatalf("valid override reported as malformed: %v", err)
	}
}

func TestBackendUnsupported(t *testing.T) {
	cfg := Default()
	_, err := cfg.Backend("Tesseract")
	if !errors.Is(err, lib.ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Default()
	cfg.Backends["Broken"] = Backend{Dir: "x", Script: "run.sh", Port: 0, Marker: "../m"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestProvisionRoot(t *testing.T) {
	cfg := Default()
	cfg.AppRoot = filepath.Join("opt", "translator", "app")
	if got, want := cfg.ProvisionRoot(), filepath.Join("opt", "translator"); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
	cfg.AppRoot = filepath.Join("opt", "translator")
	if got, want := cfg.ProvisionRoot(), filepath.Join("opt", "translator"); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.AppRoot = "root"
	cfg.TempDir = "tmp"
	b, _ := cfg.Backend(lib.BackendPaddleOCR)
	if got, want := cfg.BackendDir(b), filepath.Join("root", "webserver", "PaddleOCR"); got != want {
		t.Fatalf("backend dir: got %s want %s", got, want)
	}
	if got, want := cfg.MarkerPath(b), filepath.Join("tmp", "paddleocr_ready.txt"); got != want {
		t.Fatalf("marker: got %s want %s", got, want)
	}
}
