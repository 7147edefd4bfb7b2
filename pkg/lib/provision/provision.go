package provision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
)

// Provisioner prepares the isolated Python environment a backend runs in.
type Provisioner struct {
	cfg      *config.Config
	runner   CommandRunner
	lookPath func(string) (string, error)
	logger   *zap.Logger
	group    singleflight.Group
}

type Option func(*Provisioner)

func WithCommandRunner(r CommandRunner) Option { return func(p *Provisioner) { p.runner = r } }

func WithLookPath(f func(string) (string, error)) Option {
	return func(p *Provisioner) { p.lookPath = f }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(cfg *config.Config, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:      cfg,
		runner:   execRunner{},
		lookPath: exec.LookPath,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision makes sure the environment for kind exists and its dependencies are installed.
// It blocks for as long as the package manager runs. Concurrent calls for the same kind
// share one run.
func (p *Provisioner) Provision(ctx context.Context, kind lib.BackendKind) (bool, error) {
	if _, err := p.cfg.Backend(kind); err != nil {
		return false, err
	}
	v, err, shared := p.group.Do(string(kind), func() (any, error) {
		return p.provision(ctx, kind)
	})
	if shared {
		p.logger.Debug("Joined in-flight provisioning", zap.String("kind", kind.String()))
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Provisioner) provision(ctx context.Context, kind lib.BackendKind) (bool, error) {
	root := p.cfg.ProvisionRoot()
	manifest := filepath.Join(root, p.cfg.Provision.Manifest)
	envDir := filepath.Join(root, p.cfg.Provision.EnvDir)
	logger := p.logger.With(zap.String("kind", kind.String()), zap.String("root", root))

	if !fileExists(manifest) {
		return false, fmt.Errorf("%w: %s", lib.ErrManifestMissing, manifest)
	}

	if !dirExists(envDir) {
		logger.Info("Creating environment", zap.String("env", envDir))
		python, err := p.globalPython()
		if err != nil {
			return false, fmt.Errorf("%w: %v", lib.ErrEnvironmentCreateFailed, err)
		}
		res, err := p.runner.Run(ctx, root, python, "-m", "venv", p.cfg.Provision.EnvDir)
		if err != nil {
			return false, fmt.Errorf("%w: %v", lib.ErrEnvironmentCreateFailed, err)
		}
		if res.ExitCode != 0 {
			return false, &CommandError{Step: "venv", ExitCode: res.ExitCode, Output: res.Output(), Err: lib.ErrEnvironmentCreateFailed}
		}
	} else {
		python := p.envPython(root)
		res, err := p.runner.Run(ctx, root, python, "-m", "pip", "check")
		if err == nil && res.ExitCode == 0 {
			logger.Info("Dependencies already satisfied, skipping install")
			return true, nil
		}
		logger.Info("Dependency check failed, installing", zap.Int("exit_code", res.ExitCode), zap.Error(err))
	}

	python := p.envPython(root)
	args := []string{"-m", "pip", "install", "-r", p.cfg.Provision.Manifest}
	if p.cfg.Provision.Verbose {
		args = append(args, "--verbose")
	}
	logger.Info("Installing dependencies", zap.String("python", python), zap.String("manifest", manifest))
	res, err := p.runner.Run(ctx, root, python, args...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", lib.ErrDependencyInstallFailed, err)
	}
	if res.ExitCode != 0 {
		return false, &CommandError{Step: "pip install", ExitCode: res.ExitCode, Output: res.Output(), Err: lib.ErrDependencyInstallFailed}
	}
	logger.Info("Dependencies installed")
	return true, nil
}

// envPython resolves the interpreter: env-local first, then the same-named env one
// directory up, then whatever python is on PATH.
func (p *Provisioner) envPython(root string) string {
	for _, base := range []string{root, filepath.Dir(root)} {
		envDir := filepath.Join(base, p.cfg.Provision.EnvDir)
		for _, rel := range interpreterPaths {
			candidate := filepath.Join(envDir, rel)
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	if python, err := p.globalPython(); err == nil {
		return python
	}
	return "python"
}

func (p *Provisioner) globalPython() (string, error) {
	var lastErr error
	for _, name := range []string{"python3", "python"} {
		path, err := p.lookPath(name)
		if err == nil {
			return path, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("no python interpreter on PATH: %w", lastErr)
}

var interpreterPaths = []string{
	filepath.Join("bin", "python"),
	filepath.Join("Scripts", "python.exe"),
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
