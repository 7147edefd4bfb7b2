package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

// EnvConfigPath names the variable consulted when no --config flag is given.
const EnvConfigPath = "OCRS_CONFIG"

// Duration wraps time.Duration so YAML can carry "1s" / "500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Backend describes how one backend kind is launched and reclaimed.
type Backend struct {
	// Dir is the backend directory under <app_root>/<webserver_dir>.
	Dir string `yaml:"dir"`
	// Script is the launch script inside Dir.
	Script string `yaml:"script"`
	// Port is the single TCP port the backend listens on.
	Port int `yaml:"port"`
	// Marker is the readiness file name inside the OS temp directory.
	Marker string `yaml:"marker"`
}

// Backends maps each supported kind to its launch settings. A YAML file is merged
// into the entries already present field by field; a null entry removes the kind.
type Backends map[lib.BackendKind]Backend

func (bs *Backends) UnmarshalYAML(node *yaml.Node) error {
	var entries map[lib.BackendKind]yaml.Node
	if err := node.Decode(&entries); err != nil {
		return err
	}
	if *bs == nil {
		*bs = make(Backends, len(entries))
	}
	for kind, entry := range entries {
		if entry.ShortTag() == "!!null" {
			delete(*bs, kind)
			continue
		}
		b := (*bs)[kind]
		if err := entry.Decode(&b); err != nil {
			return fmt.Errorf("backend %s: %w", kind, err)
		}
		(*bs)[kind] = b
	}
	return nil
}

type Readiness struct {
	Interval             Duration `yaml:"interval"`
	MaxAttempts          int      `yaml:"max_attempts"`
	Watch                bool     `yaml:"watch"`
	RequireMarkerCleared bool     `yaml:"require_marker_cleared"`
}

type Stop struct {
	GracePeriod Duration `yaml:"grace_period"`
}

type Provision struct {
	Manifest string `yaml:"manifest"`
	EnvDir   string `yaml:"env_dir"`
	Verbose  bool   `yaml:"verbose"`
}

type Server struct {
	Address string `yaml:"address"`
}

type Log struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type Config struct {
	AppRoot      string    `yaml:"app_root"`
	WebserverDir string    `yaml:"webserver_dir"`
	TempDir      string    `yaml:"temp_dir"`
	MemoryHighMB int64     `yaml:"memory_high_mb"`
	Backends     Backends  `yaml:"backends"`
	Readiness    Readiness `yaml:"readiness"`
	Stop         Stop      `yaml:"stop"`
	Provision    Provision `yaml:"provision"`
	Server       Server    `yaml:"server"`
	Log          Log       `yaml:"log"`
}

// Default returns the built-in configuration: one PaddleOCR backend, 90 x 1s readiness budget.
func Default() *Config {
	return &Config{
		WebserverDir: "webserver",
		Backends: Backends{
			lib.BackendPaddleOCR: {
				Dir:    "PaddleOCR",
				Script: defaultScript("RunServerPaddleOCR"),
				Port:   9999,
				Marker: "paddleocr_ready.txt",
			},
		},
		Readiness: Readiness{
			Interval:             Duration{time.Second},
			MaxAttempts:          90,
			Watch:                true,
			RequireMarkerCleared: true,
		},
		Stop: Stop{GracePeriod: Duration{time.Second}},
		Provision: Provision{
			Manifest: "requirements.txt",
			EnvDir:   "venv",
			Verbose:  true,
		},
		Server: Server{Address: "localhost:50061"},
		Log:    Log{Level: "info", Encoding: "console"},
	}
}

func defaultScript(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".bat"
	}
	return name + ".sh"
}

// Load reads defaults, then the YAML file at path (if any), then OCRS_* overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if strings.TrimSpace(path) != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.AppRoot == "" {
		root, err := executableDir()
		if err != nil {
			return nil, err
		}
		cfg.AppRoot = root
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return filepath.Dir(exe), nil
}

func applyEnvOverrides(cfg *Config) error {
	overrideString(&cfg.AppRoot, "OCRS_APP_ROOT")
	overrideString(&cfg.WebserverDir, "OCRS_WEBSERVER_DIR")
	overrideString(&cfg.TempDir, "OCRS_TEMP_DIR")
	overrideString(&cfg.Server.Address, "OCRS_ADDRESS")
	overrideString(&cfg.Log.Level, "OCRS_LOG_LEVEL")
	overrideString(&cfg.Log.Encoding, "OCRS_LOG_ENCODING")
	return errors.Join(
		overrideDuration(&cfg.Readiness.Interval, "OCRS_READY_INTERVAL"),
		overrideInt(&cfg.Readiness.MaxAttempts, "OCRS_READY_MAX_ATTEMPTS"),
		overrideBool(&cfg.Readiness.Watch, "OCRS_READY_WATCH"),
		overrideDuration(&cfg.Stop.GracePeriod, "OCRS_STOP_GRACE"),
	)
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func overrideBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}

func overrideDuration(dst *Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	dst.Duration = d
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Backends) == 0 {
		errs = append(errs, errors.New("at least one backend is required"))
	}
	for _, kind := range c.Kinds() {
		b := c.Backends[kind]
		if b.Dir == "" || b.Script == "" {
			errs = append(errs, fmt.Errorf("backend %s: dir and script are required", kind))
		}
		if b.Port <= 0 || b.Port > 65535 {
			errs = append(errs, fmt.Errorf("backend %s: invalid port %d", kind, b.Port))
		}
		if b.Marker == "" || filepath.Base(b.Marker) != b.Marker {
			errs = append(errs, fmt.Errorf("backend %s: marker must be a bare file name", kind))
		}
	}
	if c.Readiness.Interval.Duration <= 0 {
		errs = append(errs, errors.New("readiness.interval must be positive"))
	}
	if c.Readiness.MaxAttempts <= 0 {
		errs = append(errs, errors.New("readiness.max_attempts must be positive"))
	}
	if c.Stop.GracePeriod.Duration < 0 {
		errs = append(errs, errors.New("stop.grace_period must not be negative"))
	}
	if c.Provision.Manifest == "" || c.Provision.EnvDir == "" {
		errs = append(errs, errors.New("provision.manifest and provision.env_dir are required"))
	}
	return errors.Join(errs...)
}

// Kinds returns the configured backend kinds in stable order.
func (c *Config) Kinds() []lib.BackendKind {
	kinds := make([]lib.BackendKind, 0, len(c.Backends))
	for k := range c.Backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Backend resolves the backend for kind or fails with lib.ErrUnsupportedBackend.
func (c *Config) Backend(kind lib.BackendKind) (Backend, error) {
	b, ok := c.Backends[kind]
	if !ok {
		return Backend{}, fmt.Errorf("%w: %s", lib.ErrUnsupportedBackend, kind)
	}
	return b, nil
}

// BackendDir is the working directory of the backend: <app_root>/<webserver_dir>/<dir>.
func (c *Config) BackendDir(b Backend) string {
	return filepath.Join(c.AppRoot, c.WebserverDir, b.Dir)
}

// MarkerPath is the readiness marker location for b, relative to the OS temp directory.
func (c *Config) MarkerPath(b Backend) string {
	dir := c.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, b.Marker)
}

// ProvisionRoot is where the manifest and environment live: the app root,
// or its parent when the app root itself is named "app".
func (c *Config) ProvisionRoot() string {
	root := filepath.Clean(c.AppRoot)
	if strings.EqualFold(filepath.Base(root), "app") {
		return filepath.Dir(root)
	}
	return root
}
